package elicit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-sh/parley/internal/streaming"
	"github.com/parley-sh/parley/pkg/schema"
)

type fakeNative struct {
	supported bool
	result    *NativeResult
	err       error
	gotMsg    string
	gotSchema map[string]any
}

func (f *fakeNative) Supported(ctx context.Context) bool { return f.supported }

func (f *fakeNative) Elicit(ctx context.Context, message string, requestedSchema map[string]any) (*NativeResult, error) {
	f.gotMsg = message
	f.gotSchema = requestedSchema
	return f.result, f.err
}

func newTestService(t *testing.T, timeout time.Duration) *Service {
	t.Helper()
	return NewService(NewPendingRegistry(timeout), streaming.NewMemoryHub(), nil)
}

func textSpec() *schema.ElicitationSpec {
	return &schema.ElicitationSpec{Type: schema.ElicitText, Prompt: "Your name?"}
}

func TestRequest_NativeAccept(t *testing.T) {
	svc := newTestService(t, time.Minute)
	native := &fakeNative{
		supported: true,
		result:    &NativeResult{Action: ActionAccept, Content: map[string]any{"value": "Ada"}},
	}
	svc.SetNativeChannel(native)

	got, err := svc.Request(context.Background(), "ask_name", textSpec(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got)
	assert.Equal(t, "Your name?", native.gotMsg)
	assert.NotNil(t, native.gotSchema["properties"])
}

func TestRequest_NativeDecline(t *testing.T) {
	svc := newTestService(t, time.Minute)
	svc.SetNativeChannel(&fakeNative{
		supported: true,
		result:    &NativeResult{Action: ActionDecline},
	})

	_, err := svc.Request(context.Background(), "ask_name", textSpec(), nil)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeElicitationRejected, flowErr.Code)
	assert.Equal(t, "ask_name", flowErr.StateID)
}

func TestRequest_NativeError(t *testing.T) {
	svc := newTestService(t, time.Minute)
	svc.SetNativeChannel(&fakeNative{supported: true, err: errors.New("transport broke")})

	_, err := svc.Request(context.Background(), "ask_name", textSpec(), nil)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeEffectFailed, flowErr.Code)
}

func TestRequest_NativeInvalidValue(t *testing.T) {
	svc := newTestService(t, time.Minute)
	svc.SetNativeChannel(&fakeNative{
		supported: true,
		result:    &NativeResult{Action: ActionAccept, Content: map[string]any{"value": "NaN"}},
	})

	spec := &schema.ElicitationSpec{Type: schema.ElicitNumber, Prompt: "Age?"}
	_, err := svc.Request(context.Background(), "ask_age", spec, nil)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeValidation, flowErr.Code)
}

func TestRequest_FallbackResolved(t *testing.T) {
	svc := newTestService(t, time.Minute)
	svc.SetNativeChannel(&fakeNative{supported: false})

	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := svc.Request(context.Background(), "ask_name", textSpec(), nil)
		done <- result{v, err}
	}()

	// Wait for the pending request to appear, then answer it.
	var pending []*Pending
	require.Eventually(t, func() bool {
		pending = svc.Registry().List()
		return len(pending) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := svc.Registry().Resolve(pending[0].ID, "Grace")
	require.NoError(t, err)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, "Grace", res.value)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fallback resolution")
	}

	// Exactly-once removal.
	assert.Empty(t, svc.Registry().List())
	_, err = svc.Registry().Resolve(pending[0].ID, "again")
	assert.Error(t, err)
}

func TestRequest_FallbackRejected(t *testing.T) {
	svc := newTestService(t, time.Minute)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Request(context.Background(), "ask_name", textSpec(), nil)
		done <- err
	}()

	var pending []*Pending
	require.Eventually(t, func() bool {
		pending = svc.Registry().List()
		return len(pending) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Registry().Reject(pending[0].ID))

	select {
	case err := <-done:
		var flowErr *schema.FlowError
		require.ErrorAs(t, err, &flowErr)
		assert.Equal(t, schema.ErrCodeElicitationRejected, flowErr.Code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rejection")
	}
}

func TestRequest_FallbackTimeout(t *testing.T) {
	svc := newTestService(t, 30*time.Millisecond)

	_, err := svc.Request(context.Background(), "ask_name", textSpec(), nil)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeTimeout, flowErr.Code)

	history := svc.Registry().History()
	require.Len(t, history, 1)
	assert.Equal(t, OutcomeExpired, history[0].Outcome)
}

func TestRequest_FallbackContextCancelled(t *testing.T) {
	svc := newTestService(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Request(ctx, "ask_name", textSpec(), nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return len(svc.Registry().List()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		var flowErr *schema.FlowError
		require.ErrorAs(t, err, &flowErr)
		assert.Equal(t, schema.ErrCodeCancelled, flowErr.Code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
	assert.Empty(t, svc.Registry().List())

	history := svc.Registry().History()
	require.Len(t, history, 1)
	assert.Equal(t, OutcomeCancelled, history[0].Outcome)
}

func TestRegistry_ResolveInvalidLeavesPending(t *testing.T) {
	reg := NewPendingRegistry(time.Minute)
	spec := &schema.ElicitationSpec{Type: schema.ElicitNumber, Min: f64(1), Max: f64(5)}
	p := reg.Create("pick", "Pick 1-5", spec, nil)

	// Out-of-range answer: rejected, but the request survives.
	_, err := reg.Resolve(p.ID, float64(9))
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeValidation, flowErr.Code)

	_, stillThere := reg.Get(p.ID)
	assert.True(t, stillThere)

	// A valid answer then settles it.
	v, err := reg.Resolve(p.ID, float64(3))
	require.NoError(t, err)
	assert.Equal(t, float64(3), v)

	_, stillThere = reg.Get(p.ID)
	assert.False(t, stillThere)
}

func TestRegistry_HistoryAppendOnly(t *testing.T) {
	reg := NewPendingRegistry(time.Minute)
	spec := textSpec()

	p1 := reg.Create("a", "first", spec, nil)
	p2 := reg.Create("b", "second", spec, nil)

	_, err := reg.Resolve(p1.ID, "answer")
	require.NoError(t, err)
	require.NoError(t, reg.Reject(p2.ID))

	history := reg.History()
	require.Len(t, history, 2)
	assert.Equal(t, OutcomeAnswered, history[0].Outcome)
	assert.Equal(t, "answer", history[0].Response)
	assert.NotNil(t, history[0].ResolvedAt)
	assert.Equal(t, OutcomeRejected, history[1].Outcome)
}

func TestRegistry_RejectUnknown(t *testing.T) {
	reg := NewPendingRegistry(time.Minute)
	err := reg.Reject("missing")
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeNotFound, flowErr.Code)
}

func TestRegistry_ListOldestFirst(t *testing.T) {
	reg := NewPendingRegistry(time.Minute)
	p1 := reg.Create("a", "first", textSpec(), nil)
	time.Sleep(2 * time.Millisecond)
	p2 := reg.Create("b", "second", textSpec(), nil)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, p1.ID, list[0].ID)
	assert.Equal(t, p2.ID, list[1].ID)
}
