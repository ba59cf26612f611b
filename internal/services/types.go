package services

import (
	"context"
	"encoding/json"
	"errors"
)

// InboundEvent is one webhook delivery: a provider-assigned event id (may be
// redelivered), the sender's conversation id (WhatsApp number) and the
// extracted message text.
type InboundEvent struct {
	EventID        string
	ConversationID string
	Text           string
}

// SideEffectRequest is emitted by a running assistant job when it needs the
// relay to perform an action before it can finish.
type SideEffectRequest struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// SideEffectResult answers one SideEffectRequest. Output is the JSON document
// submitted back to the job backend.
type SideEffectResult struct {
	RequestID string
	Output    string
}

// TurnOutput is the assistant's final answer for one turn.
type TurnOutput struct {
	Text      string
	ImageURLs []string
}

// Remote job states as seen by the poller.
const (
	RunStateRunning   = "running"
	RunStateWaiting   = "waiting_for_side_effects"
	RunStateCompleted = "completed"
	RunStateFailed    = "failed"
	RunStateCancelled = "cancelled"
)

// RunStatus is one poll observation of a remote job.
type RunStatus struct {
	State           string
	PendingRequests []SideEffectRequest
	Failure         string
}

var (
	// ErrDuplicateEvent marks an event id the ledger has already recorded.
	ErrDuplicateEvent = errors.New("duplicate event")
	// ErrEmptyContent marks an event with no usable message content.
	ErrEmptyContent = errors.New("empty or unsupported content")
	// ErrRunTimeout marks a run cancelled after exceeding the polling ceiling.
	ErrRunTimeout = errors.New("assistant run timed out")
)

// Ledger admits each event id exactly once inside the retention window.
type Ledger interface {
	Admit(ctx context.Context, eventID string) (bool, error)
}

// RunBackend is the remote assistant job service. One job runs per submitted
// turn; PollStatus drives it to a terminal state.
type RunBackend interface {
	CreateThread(ctx context.Context) (string, error)
	SubmitTurn(ctx context.Context, threadID string, text string) (string, error)
	PollStatus(ctx context.Context, threadID string, runID string) (*RunStatus, error)
	SubmitResults(ctx context.Context, threadID string, runID string, results []SideEffectResult) error
	Cancel(ctx context.Context, threadID string, runID string) error
	FetchOutput(ctx context.Context, threadID string) (*TurnOutput, error)
}

// Transport delivers assistant replies back to the sender.
type Transport interface {
	SendText(ctx context.Context, conversationID string, text string) error
	SendImage(ctx context.Context, conversationID string, url string) error
}
