package elicit

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-sh/parley/pkg/schema"
)

// DefaultTimeout is how long a fallback elicitation waits for a response
// before expiring.
const DefaultTimeout = 5 * time.Minute

// Outcome values recorded in the elicitation history.
const (
	OutcomePending   = "pending"
	OutcomeAnswered  = "answered"
	OutcomeRejected  = "rejected"
	OutcomeExpired   = "expired"
	OutcomeCancelled = "cancelled"
)

type outcome struct {
	value any
	err   error
}

// Pending is one fallback elicitation waiting for a response.
type Pending struct {
	ID        string                  `json:"id"`
	StateID   string                  `json:"state_id"`
	Prompt    string                  `json:"prompt"`
	Spec      *schema.ElicitationSpec `json:"spec"`
	Context   map[string]any          `json:"context,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	ExpiresAt time.Time               `json:"expires_at"`

	done    chan outcome
	timer   *time.Timer
	settled bool
}

// HistoryEntry records one elicitation's lifecycle. Entries are appended at
// creation and updated in place when the request settles; they are never
// removed.
type HistoryEntry struct {
	ID         string     `json:"id"`
	StateID    string     `json:"state_id"`
	Type       string     `json:"type"`
	Prompt     string     `json:"prompt"`
	Outcome    string     `json:"outcome"`
	Response   any        `json:"response,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// PendingRegistry tracks fallback elicitations awaiting out-of-band responses.
// Each request settles exactly once: the first of resolve, reject, or expiry
// wins and removes it.
type PendingRegistry struct {
	mu       sync.Mutex
	pending  map[string]*Pending
	history  []*HistoryEntry
	timeout  time.Duration
	onExpire func(p *Pending)
}

// NewPendingRegistry creates a registry with the given response timeout.
// A zero timeout selects DefaultTimeout.
func NewPendingRegistry(timeout time.Duration) *PendingRegistry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PendingRegistry{
		pending: make(map[string]*Pending),
		timeout: timeout,
	}
}

// OnExpire sets a callback invoked after a request expires. Must be set
// before the registry is used.
func (r *PendingRegistry) OnExpire(fn func(p *Pending)) {
	r.onExpire = fn
}

// Create registers a new pending elicitation and starts its expiry timer.
// vars is the elicitation context, kept so out-of-band responders can see the
// values the prompt was rendered against.
func (r *PendingRegistry) Create(stateID, prompt string, spec *schema.ElicitationSpec, vars map[string]any) *Pending {
	now := time.Now()
	p := &Pending{
		ID:        uuid.NewString(),
		StateID:   stateID,
		Prompt:    prompt,
		Spec:      spec,
		Context:   schema.CopyVariables(vars),
		CreatedAt: now,
		ExpiresAt: now.Add(r.timeout),
		done:      make(chan outcome, 1),
	}

	r.mu.Lock()
	r.pending[p.ID] = p
	r.history = append(r.history, &HistoryEntry{
		ID:        p.ID,
		StateID:   stateID,
		Type:      string(spec.Type),
		Prompt:    prompt,
		Outcome:   OutcomePending,
		CreatedAt: now,
	})
	r.mu.Unlock()

	p.timer = time.AfterFunc(r.timeout, func() { r.expire(p.ID) })
	return p
}

// Resolve answers a pending elicitation. An invalid response returns its
// reason and leaves the request pending so it can be answered again; a valid
// response settles the request and returns the transformed value.
func (r *PendingRegistry) Resolve(id string, raw any) (any, error) {
	r.mu.Lock()
	p, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no pending elicitation %q", id)
	}

	if ok, reason := ValidateResponse(raw, p.Spec); !ok {
		r.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid response for elicitation %q: %s", id, reason)
	}

	value, err := TransformResponse(raw, p.Spec)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	r.settleLocked(p, OutcomeAnswered, value, nil)
	r.mu.Unlock()
	return value, nil
}

// Reject declines a pending elicitation, failing the waiting run.
func (r *PendingRegistry) Reject(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no pending elicitation %q", id)
	}

	rejErr := schema.NewError(schema.ErrCodeElicitationRejected, "elicitation was rejected").WithState(p.StateID)
	r.settleLocked(p, OutcomeRejected, nil, rejErr)
	return nil
}

func (r *PendingRegistry) expire(id string) {
	r.mu.Lock()
	p, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	timeoutErr := schema.NewError(schema.ErrCodeTimeout, "elicitation timed out waiting for a response").WithState(p.StateID)
	r.settleLocked(p, OutcomeExpired, nil, timeoutErr)
	r.mu.Unlock()

	if r.onExpire != nil {
		r.onExpire(p)
	}
}

// settleLocked finalizes a request: removes it from the pending map, stops
// its timer, updates its history entry, and delivers the outcome to the
// waiter. Caller holds r.mu; the settled flag makes delivery exactly-once.
func (r *PendingRegistry) settleLocked(p *Pending, outcomeKind string, value any, err error) {
	if p.settled {
		return
	}
	p.settled = true
	delete(r.pending, p.ID)
	if p.timer != nil {
		p.timer.Stop()
	}

	now := time.Now()
	for _, h := range r.history {
		if h.ID == p.ID {
			h.Outcome = outcomeKind
			h.Response = value
			h.ResolvedAt = &now
			break
		}
	}

	p.done <- outcome{value: value, err: err}
}

// Cancel abandons a pending elicitation without delivering an outcome, used
// when the waiting run's context ends first.
func (r *PendingRegistry) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[id]
	if !ok {
		return
	}
	p.settled = true
	delete(r.pending, id)
	if p.timer != nil {
		p.timer.Stop()
	}

	now := time.Now()
	for _, h := range r.history {
		if h.ID == id {
			h.Outcome = OutcomeCancelled
			h.ResolvedAt = &now
			break
		}
	}
}

// Get returns a pending elicitation by id.
func (r *PendingRegistry) Get(id string) (*Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	return p, ok
}

// List returns all pending elicitations, oldest first.
func (r *PendingRegistry) List() []*Pending {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Pending, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// History returns a snapshot of all elicitation history entries, oldest first.
func (r *PendingRegistry) History() []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]HistoryEntry, len(r.history))
	for i, h := range r.history {
		out[i] = *h
	}
	return out
}
