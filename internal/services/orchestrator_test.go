package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/GOGOSCHNO/assistantai1/internal/domain"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/dbctx"
)

type fakeLedger struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: make(map[string]bool)}
}

func (l *fakeLedger) Admit(ctx context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.seen[eventID] {
		return false, nil
	}
	l.seen[eventID] = true
	return true, nil
}

type fakeTransport struct {
	mu     sync.Mutex
	texts  []string
	images []string
}

func (t *fakeTransport) SendText(ctx context.Context, conversationID string, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.texts = append(t.texts, text)
	return nil
}

func (t *fakeTransport) SendImage(ctx context.Context, conversationID string, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.images = append(t.images, url)
	return nil
}

type fakeThreadRepo struct {
	mu      sync.Mutex
	rows    map[string]*domain.ConversationThread
	creates int
}

func newFakeThreadRepo() *fakeThreadRepo {
	return &fakeThreadRepo{rows: make(map[string]*domain.ConversationThread)}
}

func (r *fakeThreadRepo) GetByConversationID(dbc dbctx.Context, conversationID string) (*domain.ConversationThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[conversationID], nil
}

func (r *fakeThreadRepo) Create(dbc dbctx.Context, row *domain.ConversationThread) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if _, ok := r.rows[row.ConversationID]; ok {
		return nil
	}
	r.rows[row.ConversationID] = row
	return nil
}

type fakeTurnRepo struct {
	mu   sync.Mutex
	rows []*domain.ConversationTurn
}

func (r *fakeTurnRepo) Append(dbc dbctx.Context, row *domain.ConversationTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
	return nil
}

func (r *fakeTurnRepo) ListByConversationID(dbc dbctx.Context, conversationID string, limit int) ([]*domain.ConversationTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ConversationTurn
	for _, row := range r.rows {
		if row.ConversationID == conversationID {
			out = append(out, row)
		}
	}
	return out, nil
}

// orchBackend completes every run on the first poll and records submitted
// prompts. onSubmit, when set, fires during SubmitTurn to model messages
// arriving mid-submission.
type orchBackend struct {
	mu        sync.Mutex
	prompts   []string
	threads   int
	output    *TurnOutput
	submitErr error
	pollErr   error
	onSubmit  func()
}

func (b *orchBackend) CreateThread(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threads++
	return fmt.Sprintf("thread-%d", b.threads), nil
}

func (b *orchBackend) SubmitTurn(ctx context.Context, threadID string, text string) (string, error) {
	b.mu.Lock()
	if b.submitErr != nil {
		b.mu.Unlock()
		return "", b.submitErr
	}
	b.prompts = append(b.prompts, text)
	hook := b.onSubmit
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return "run-1", nil
}

func (b *orchBackend) PollStatus(ctx context.Context, threadID string, runID string) (*RunStatus, error) {
	if b.pollErr != nil {
		return nil, b.pollErr
	}
	return &RunStatus{State: RunStateCompleted}, nil
}

func (b *orchBackend) SubmitResults(ctx context.Context, threadID string, runID string, results []SideEffectResult) error {
	return nil
}

func (b *orchBackend) Cancel(ctx context.Context, threadID string, runID string) error {
	return nil
}

func (b *orchBackend) FetchOutput(ctx context.Context, threadID string) (*TurnOutput, error) {
	if b.output != nil {
		return b.output, nil
	}
	return &TurnOutput{Text: "respuesta"}, nil
}

func (b *orchBackend) submittedPrompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.prompts))
	copy(out, b.prompts)
	return out
}

type orchFixture struct {
	queue     *ConversationQueue
	ledger    *fakeLedger
	backend   *orchBackend
	transport *fakeTransport
	threads   *fakeThreadRepo
	turns     *fakeTurnRepo
	orch      *Orchestrator
}

func newOrchFixture(t *testing.T, backend *orchBackend) *orchFixture {
	t.Helper()
	log := testLogger(t)
	f := &orchFixture{
		queue:     NewConversationQueue(log),
		ledger:    newFakeLedger(),
		backend:   backend,
		transport: &fakeTransport{},
		threads:   newFakeThreadRepo(),
		turns:     &fakeTurnRepo{},
	}
	poller := NewRunPoller(log, backend, NewSideEffectRegistry(log), fastPollerConfig())
	f.orch = NewOrchestrator(log, nil, f.queue, f.ledger, backend, poller, f.transport, f.threads, f.turns)
	return f
}

func TestOrchestratorSingleTurn(t *testing.T) {
	f := newOrchFixture(t, &orchBackend{})

	err := f.orch.HandleInbound(context.Background(), InboundEvent{
		EventID:        "ev-1",
		ConversationID: "573001112233",
		Text:           "Hola",
	})
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}

	prompts := f.backend.submittedPrompts()
	if len(prompts) != 1 {
		t.Fatalf("submitted %d prompts, want 1", len(prompts))
	}
	if !strings.Contains(prompts[0], `"Hola"`) {
		t.Fatalf("prompt missing user message: %q", prompts[0])
	}
	if !strings.Contains(prompts[0], "573001112233") {
		t.Fatalf("prompt missing sender number: %q", prompts[0])
	}
	if len(f.transport.texts) != 1 || f.transport.texts[0] != "respuesta" {
		t.Fatalf("replies = %v, want one", f.transport.texts)
	}
	if len(f.turns.rows) != 1 {
		t.Fatalf("persisted %d turns, want 1", len(f.turns.rows))
	}
	if !f.queue.TryAcquire("573001112233") {
		t.Fatalf("conversation lock was not released")
	}
}

func TestOrchestratorBatchCoalescing(t *testing.T) {
	f := newOrchFixture(t, &orchBackend{})
	ctx := context.Background()

	// Two messages land while no processor holds the conversation; the owner
	// drains them as one combined turn.
	f.queue.Enqueue("c1", "Hola")
	f.queue.Enqueue("c1", "Quiero una cita")
	if !f.queue.TryAcquire("c1") {
		t.Fatalf("setup: could not acquire lock")
	}
	f.orch.runConversation(ctx, "c1")

	prompts := f.backend.submittedPrompts()
	if len(prompts) != 1 {
		t.Fatalf("submitted %d prompts, want 1 coalesced turn", len(prompts))
	}
	if !strings.Contains(prompts[0], `"Hola. Quiero una cita"`) {
		t.Fatalf("prompt not coalesced: %q", prompts[0])
	}
	if len(f.turns.rows) != 1 {
		t.Fatalf("persisted %d turns, want 1", len(f.turns.rows))
	}
	if f.turns.rows[0].UserMessage != "Hola. Quiero una cita" {
		t.Fatalf("turn user message = %q", f.turns.rows[0].UserMessage)
	}
	if len(f.transport.texts) != 1 {
		t.Fatalf("sent %d replies, want 1", len(f.transport.texts))
	}
}

func TestOrchestratorDuplicateDropped(t *testing.T) {
	f := newOrchFixture(t, &orchBackend{})
	ctx := context.Background()
	ev := InboundEvent{EventID: "ev-1", ConversationID: "c1", Text: "Hola"}

	if err := f.orch.HandleInbound(ctx, ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	err := f.orch.HandleInbound(ctx, ev)
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("redelivery err = %v, want ErrDuplicateEvent", err)
	}

	if got := len(f.backend.submittedPrompts()); got != 1 {
		t.Fatalf("submitted %d prompts after redelivery, want 1", got)
	}
	if got := f.queue.PendingLen("c1"); got != 0 {
		t.Fatalf("redelivery left %d messages queued, want 0", got)
	}
}

func TestOrchestratorEmptyContent(t *testing.T) {
	f := newOrchFixture(t, &orchBackend{})

	err := f.orch.HandleInbound(context.Background(), InboundEvent{
		EventID:        "ev-1",
		ConversationID: "c1",
		Text:           "   ",
	})
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("err = %v, want ErrEmptyContent", err)
	}
	if f.ledger.seen["ev-1"] {
		t.Fatalf("empty event must not consume a ledger slot")
	}
}

func TestOrchestratorBusyConversationQueuesMessage(t *testing.T) {
	f := newOrchFixture(t, &orchBackend{})

	if !f.queue.TryAcquire("c1") {
		t.Fatalf("setup: could not acquire lock")
	}
	err := f.orch.HandleInbound(context.Background(), InboundEvent{
		EventID:        "ev-1",
		ConversationID: "c1",
		Text:           "Hola",
	})
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if got := len(f.backend.submittedPrompts()); got != 0 {
		t.Fatalf("busy conversation submitted %d prompts, want 0", got)
	}
	if got := f.queue.PendingLen("c1"); got != 1 {
		t.Fatalf("pending = %d, want the message left for the owner", got)
	}
}

func TestOrchestratorRaceRequeuesBatch(t *testing.T) {
	backend := &orchBackend{}
	f := newOrchFixture(t, backend)

	var once sync.Once
	backend.onSubmit = func() {
		once.Do(func() {
			f.queue.Enqueue("c1", "y esta tarde?")
		})
	}

	err := f.orch.HandleInbound(context.Background(), InboundEvent{
		EventID:        "ev-1",
		ConversationID: "c1",
		Text:           "Quiero una cita",
	})
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}

	prompts := f.backend.submittedPrompts()
	if len(prompts) != 2 {
		t.Fatalf("submitted %d prompts, want 2 (stale turn then combined retry)", len(prompts))
	}
	if strings.Contains(prompts[0], "esta tarde") {
		t.Fatalf("first prompt must predate the racing message: %q", prompts[0])
	}
	if !strings.Contains(prompts[1], `"Quiero una cita. y esta tarde?"`) {
		t.Fatalf("retry prompt not combined in arrival order: %q", prompts[1])
	}
	// The stale answer is still delivered, then the retry's answer.
	if len(f.transport.texts) != 2 {
		t.Fatalf("sent %d replies, want 2", len(f.transport.texts))
	}
	if got := f.queue.PendingLen("c1"); got != 0 {
		t.Fatalf("pending = %d after retry, want 0", got)
	}
	if !f.queue.TryAcquire("c1") {
		t.Fatalf("conversation lock was not released")
	}
}

func TestOrchestratorReleasesLockOnSubmitFailure(t *testing.T) {
	f := newOrchFixture(t, &orchBackend{submitErr: errors.New("backend down")})

	err := f.orch.HandleInbound(context.Background(), InboundEvent{
		EventID:        "ev-1",
		ConversationID: "c1",
		Text:           "Hola",
	})
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if len(f.transport.texts) != 0 {
		t.Fatalf("failed turn must not send a reply, got %v", f.transport.texts)
	}
	if !f.queue.TryAcquire("c1") {
		t.Fatalf("lock still held after submission failure")
	}
}

func TestOrchestratorReleasesLockOnPollFailure(t *testing.T) {
	f := newOrchFixture(t, &orchBackend{pollErr: errors.New("poll went sideways")})

	err := f.orch.HandleInbound(context.Background(), InboundEvent{
		EventID:        "ev-1",
		ConversationID: "c1",
		Text:           "Hola",
	})
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if len(f.transport.texts) != 0 {
		t.Fatalf("failed run must not send a reply, got %v", f.transport.texts)
	}
	if len(f.turns.rows) != 0 {
		t.Fatalf("failed run must not persist a turn")
	}
	if !f.queue.TryAcquire("c1") {
		t.Fatalf("lock still held after poll failure")
	}
}

func TestOrchestratorThreadReuse(t *testing.T) {
	f := newOrchFixture(t, &orchBackend{})
	ctx := context.Background()

	for i, text := range []string{"Hola", "Sigues ahi?"} {
		err := f.orch.HandleInbound(ctx, InboundEvent{
			EventID:        fmt.Sprintf("ev-%d", i),
			ConversationID: "c1",
			Text:           text,
		})
		if err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	if f.backend.threads != 1 {
		t.Fatalf("created %d threads across turns, want 1", f.backend.threads)
	}
	if len(f.threads.rows) != 1 {
		t.Fatalf("persisted %d thread mappings, want 1", len(f.threads.rows))
	}
	for _, row := range f.turns.rows {
		if row.ThreadID != "thread-1" {
			t.Fatalf("turn recorded thread %q, want thread-1", row.ThreadID)
		}
	}
}

func TestOrchestratorDeliversImages(t *testing.T) {
	f := newOrchFixture(t, &orchBackend{
		output: &TurnOutput{
			Text:      "aqui esta el menu",
			ImageURLs: []string{"https://cdn.example.com/menu.jpg"},
		},
	})

	err := f.orch.HandleInbound(context.Background(), InboundEvent{
		EventID:        "ev-1",
		ConversationID: "c1",
		Text:           "Me muestras el menu?",
	})
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if len(f.transport.texts) != 1 || len(f.transport.images) != 1 {
		t.Fatalf("sent %d texts and %d images, want 1 and 1", len(f.transport.texts), len(f.transport.images))
	}
	if f.transport.images[0] != "https://cdn.example.com/menu.jpg" {
		t.Fatalf("image url = %q", f.transport.images[0])
	}
}
