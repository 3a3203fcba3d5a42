package mcp

import (
	"context"
	"log/slog"

	"github.com/parley-sh/parley/internal/streaming"
)

// Method for run event notifications pushed to clients.
const eventNotificationMethod = "notifications/parley/event"

// notificationSender is the slice of server.MCPServer the notifier needs.
type notificationSender interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// eventNotifier forwards run events from the hub to every connected client,
// so run progress and pending elicitations can be followed without polling
// parley.status.
type eventNotifier struct {
	sender notificationSender
	hub    streaming.EventHub
	logger *slog.Logger
}

// Start subscribes to the hub and forwards events until ctx ends.
func (n *eventNotifier) Start(ctx context.Context) error {
	events, unsubscribe, err := n.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}

	go func() {
		defer unsubscribe()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				n.sender.SendNotificationToAllClients(eventNotificationMethod, notificationParams(ev))
			case <-ctx.Done():
				return
			}
		}
	}()

	n.logger.DebugContext(ctx, "event notifier started")
	return nil
}

func notificationParams(ev streaming.RunEvent) map[string]any {
	params := map[string]any{"event": ev.EventType}
	if ev.RunID != "" {
		params["run_id"] = ev.RunID
	}
	if ev.StateID != "" {
		params["state_id"] = ev.StateID
	}
	if ev.Payload != nil {
		params["payload"] = ev.Payload
	}
	return params
}
