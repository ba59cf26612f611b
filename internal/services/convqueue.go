package services

import (
	"sync"

	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

// ConversationQueue is the per-conversation mailbox and mutual-exclusion gate.
// At most one processor owns a conversation at any instant; messages arriving
// while a job is in flight queue behind it and are picked up by the owner's
// next drain. All state lives behind one mutex so every operation is an
// atomic check-and-set.
type ConversationQueue struct {
	log *logger.Logger

	mu     sync.Mutex
	states map[string]*conversationState
}

type conversationState struct {
	pending []string
	locked  bool
}

func NewConversationQueue(log *logger.Logger) *ConversationQueue {
	return &ConversationQueue{
		log:    log.With("service", "ConversationQueue"),
		states: make(map[string]*conversationState),
	}
}

func (q *ConversationQueue) state(conversationID string) *conversationState {
	st, ok := q.states[conversationID]
	if !ok {
		st = &conversationState{}
		q.states[conversationID] = st
	}
	return st
}

// Enqueue appends message to the conversation's mailbox. Always succeeds.
func (q *ConversationQueue) Enqueue(conversationID string, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.state(conversationID)
	st.pending = append(st.pending, message)
}

// TryAcquire makes the caller the conversation's sole processor when no job
// is in flight. A false return means another processor owns the conversation
// and will observe the new messages during its own post-run drain.
func (q *ConversationQueue) TryAcquire(conversationID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.state(conversationID)
	if st.locked {
		return false
	}
	st.locked = true
	return true
}

// DrainAll atomically empties and returns the mailbox as one batch.
func (q *ConversationQueue) DrainAll(conversationID string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.state(conversationID)
	batch := st.pending
	st.pending = nil
	return batch
}

// RequeueFront puts batch back ahead of anything queued after it, so a turn
// whose submission raced with new arrivals is retried as one fresh turn.
func (q *ConversationQueue) RequeueFront(conversationID string, batch []string) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.state(conversationID)
	merged := make([]string, 0, len(batch)+len(st.pending))
	merged = append(merged, batch...)
	merged = append(merged, st.pending...)
	st.pending = merged
}

// Release clears the in-flight flag.
func (q *ConversationQueue) Release(conversationID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state(conversationID).locked = false
}

// PendingLen reports the mailbox depth; used for the post-submission race
// check and the post-release stranding check.
func (q *ConversationQueue) PendingLen(conversationID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.state(conversationID).pending)
}
