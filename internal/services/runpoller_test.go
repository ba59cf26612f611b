package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeRunBackend serves a scripted sequence of poll observations; the final
// entry repeats once the script is exhausted.
type fakeRunBackend struct {
	mu        sync.Mutex
	script    []*RunStatus
	pos       int
	submitted [][]SideEffectResult
	cancels   int32
	output    *TurnOutput
	outputErr error
}

func (b *fakeRunBackend) CreateThread(ctx context.Context) (string, error) {
	return "thread-1", nil
}

func (b *fakeRunBackend) SubmitTurn(ctx context.Context, threadID string, text string) (string, error) {
	return "run-1", nil
}

func (b *fakeRunBackend) PollStatus(ctx context.Context, threadID string, runID string) (*RunStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.script) == 0 {
		return &RunStatus{State: RunStateRunning}, nil
	}
	st := b.script[b.pos]
	if b.pos < len(b.script)-1 {
		b.pos++
	}
	return st, nil
}

func (b *fakeRunBackend) SubmitResults(ctx context.Context, threadID string, runID string, results []SideEffectResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, results)
	return nil
}

func (b *fakeRunBackend) Cancel(ctx context.Context, threadID string, runID string) error {
	atomic.AddInt32(&b.cancels, 1)
	return nil
}

func (b *fakeRunBackend) FetchOutput(ctx context.Context, threadID string) (*TurnOutput, error) {
	return b.output, b.outputErr
}

func (b *fakeRunBackend) submittedBatches() [][]SideEffectResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]SideEffectResult, len(b.submitted))
	copy(out, b.submitted)
	return out
}

func fastPollerConfig() PollerConfig {
	return PollerConfig{
		PollInterval: time.Millisecond,
		ResumeDelay:  time.Millisecond,
		RunTimeout:   2 * time.Second,
	}
}

func TestPollerCompletesAfterSeveralPolls(t *testing.T) {
	backend := &fakeRunBackend{
		script: []*RunStatus{
			{State: RunStateRunning},
			{State: RunStateRunning},
			{State: RunStateCompleted},
		},
		output: &TurnOutput{Text: "listo"},
	}
	reg := NewSideEffectRegistry(testLogger(t))
	p := NewRunPoller(testLogger(t), backend, reg, fastPollerConfig())

	out, err := p.Poll(context.Background(), "thread-1", "run-1")
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if out.Text != "listo" {
		t.Fatalf("output text = %q, want listo", out.Text)
	}
}

func TestPollerSideEffectRoundTrip(t *testing.T) {
	req := SideEffectRequest{
		ID:        "call-1",
		Name:      "get_image_url",
		Arguments: json.RawMessage(`{"imageCode":"menu"}`),
	}
	backend := &fakeRunBackend{
		script: []*RunStatus{
			{State: RunStateWaiting, PendingRequests: []SideEffectRequest{req}},
			{State: RunStateCompleted},
		},
		output: &TurnOutput{Text: "aqui tienes"},
	}

	var calls int32
	reg := NewSideEffectRegistry(testLogger(t))
	reg.Register("get_image_url", func(ctx context.Context, params json.RawMessage) (any, error) {
		atomic.AddInt32(&calls, 1)
		return map[string]string{"imageUrl": "https://cdn.example.com/menu.jpg"}, nil
	})

	p := NewRunPoller(testLogger(t), backend, reg, fastPollerConfig())
	out, err := p.Poll(context.Background(), "thread-1", "run-1")
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if out.Text != "aqui tienes" {
		t.Fatalf("output text = %q", out.Text)
	}
	if calls != 1 {
		t.Fatalf("handler invoked %d times, want 1", calls)
	}

	batches := backend.submittedBatches()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("submitted batches = %v, want one batch of one result", batches)
	}
	res := batches[0][0]
	if res.RequestID != "call-1" {
		t.Fatalf("result request id = %q, want call-1", res.RequestID)
	}
	if !strings.Contains(res.Output, "menu.jpg") {
		t.Fatalf("result output = %q, want image url", res.Output)
	}
}

func TestPollerDoesNotReinvokeAnsweredRequests(t *testing.T) {
	req := SideEffectRequest{ID: "call-1", Name: "book_appointment", Arguments: json.RawMessage(`{}`)}
	backend := &fakeRunBackend{
		script: []*RunStatus{
			{State: RunStateWaiting, PendingRequests: []SideEffectRequest{req}},
			// Transient backend lag: the same pending set is observed again.
			{State: RunStateWaiting, PendingRequests: []SideEffectRequest{req}},
			{State: RunStateCompleted},
		},
		output: &TurnOutput{},
	}

	var calls int32
	reg := NewSideEffectRegistry(testLogger(t))
	reg.Register("book_appointment", func(ctx context.Context, params json.RawMessage) (any, error) {
		atomic.AddInt32(&calls, 1)
		return map[string]string{"status": "confirmed"}, nil
	})

	p := NewRunPoller(testLogger(t), backend, reg, fastPollerConfig())
	if _, err := p.Poll(context.Background(), "thread-1", "run-1"); err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler invoked %d times across re-observations, want 1", calls)
	}
	if got := len(backend.submittedBatches()); got != 1 {
		t.Fatalf("results submitted %d times, want 1", got)
	}
}

func TestPollerHandlerErrorSubmittedAsPayload(t *testing.T) {
	req := SideEffectRequest{ID: "call-1", Name: "notify_merchant", Arguments: json.RawMessage(`{}`)}
	backend := &fakeRunBackend{
		script: []*RunStatus{
			{State: RunStateWaiting, PendingRequests: []SideEffectRequest{req}},
			{State: RunStateCompleted},
		},
		output: &TurnOutput{},
	}

	reg := NewSideEffectRegistry(testLogger(t))
	reg.Register("notify_merchant", func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, errors.New("provider rejected message")
	})

	p := NewRunPoller(testLogger(t), backend, reg, fastPollerConfig())
	if _, err := p.Poll(context.Background(), "thread-1", "run-1"); err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	batches := backend.submittedBatches()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("submitted batches = %v, want one batch of one result", batches)
	}
	if !strings.Contains(batches[0][0].Output, "provider rejected message") {
		t.Fatalf("handler failure not reported in result payload: %q", batches[0][0].Output)
	}
}

func TestPollerUnknownFunctionSkippedUntilTimeout(t *testing.T) {
	req := SideEffectRequest{ID: "call-1", Name: "no_such_function"}
	backend := &fakeRunBackend{
		script: []*RunStatus{
			{State: RunStateWaiting, PendingRequests: []SideEffectRequest{req}},
		},
	}
	reg := NewSideEffectRegistry(testLogger(t))

	cfg := fastPollerConfig()
	cfg.RunTimeout = 20 * time.Millisecond
	p := NewRunPoller(testLogger(t), backend, reg, cfg)

	_, err := p.Poll(context.Background(), "thread-1", "run-1")
	if !errors.Is(err, ErrRunTimeout) {
		t.Fatalf("err = %v, want ErrRunTimeout", err)
	}
	if got := len(backend.submittedBatches()); got != 0 {
		t.Fatalf("results submitted %d times for unknown function, want 0", got)
	}
	if atomic.LoadInt32(&backend.cancels) != 1 {
		t.Fatalf("cancel called %d times, want 1", backend.cancels)
	}
}

func TestPollerTimeoutCancelsRun(t *testing.T) {
	backend := &fakeRunBackend{} // never leaves the running state

	cfg := fastPollerConfig()
	cfg.RunTimeout = 20 * time.Millisecond
	p := NewRunPoller(testLogger(t), backend, NewSideEffectRegistry(testLogger(t)), cfg)

	started := time.Now()
	_, err := p.Poll(context.Background(), "thread-1", "run-1")
	if !errors.Is(err, ErrRunTimeout) {
		t.Fatalf("err = %v, want ErrRunTimeout", err)
	}
	if elapsed := time.Since(started); elapsed < cfg.RunTimeout {
		t.Fatalf("gave up after %v, before the %v ceiling", elapsed, cfg.RunTimeout)
	}
	if atomic.LoadInt32(&backend.cancels) != 1 {
		t.Fatalf("cancel called %d times, want 1", backend.cancels)
	}
}

func TestPollerRunFailure(t *testing.T) {
	backend := &fakeRunBackend{
		script: []*RunStatus{
			{State: RunStateFailed, Failure: "rate limited"},
		},
	}
	p := NewRunPoller(testLogger(t), backend, NewSideEffectRegistry(testLogger(t)), fastPollerConfig())

	_, err := p.Poll(context.Background(), "thread-1", "run-1")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err = %v, want failure reason surfaced", err)
	}
}

func TestPollerContextCancellation(t *testing.T) {
	backend := &fakeRunBackend{} // never terminal
	p := NewRunPoller(testLogger(t), backend, NewSideEffectRegistry(testLogger(t)), PollerConfig{
		PollInterval: 50 * time.Millisecond,
		ResumeDelay:  time.Millisecond,
		RunTimeout:   time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Poll(ctx, "thread-1", "run-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
