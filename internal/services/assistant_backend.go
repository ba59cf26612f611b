package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/GOGOSCHNO/assistantai1/internal/clients/openai"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

// assistantBackend adapts the OpenAI Assistants API to the RunBackend
// contract the poller and orchestrator work against.
type assistantBackend struct {
	log *logger.Logger
	oa  openai.Client
}

func NewAssistantBackend(log *logger.Logger, oa openai.Client) RunBackend {
	return &assistantBackend{
		log: log.With("service", "AssistantBackend"),
		oa:  oa,
	}
}

func (b *assistantBackend) CreateThread(ctx context.Context) (string, error) {
	return b.oa.CreateThread(ctx)
}

func (b *assistantBackend) SubmitTurn(ctx context.Context, threadID string, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyContent
	}
	if err := b.oa.AddUserMessage(ctx, threadID, text); err != nil {
		return "", fmt.Errorf("add user message: %w", err)
	}
	runID, err := b.oa.CreateRun(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return runID, nil
}

func (b *assistantBackend) PollStatus(ctx context.Context, threadID string, runID string) (*RunStatus, error) {
	run, err := b.oa.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case openai.RunStatusCompleted:
		return &RunStatus{State: RunStateCompleted}, nil

	case openai.RunStatusRequiresAction:
		status := &RunStatus{State: RunStateWaiting}
		if run.RequiredAction != nil && run.RequiredAction.SubmitToolOutputs != nil {
			for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
				status.PendingRequests = append(status.PendingRequests, SideEffectRequest{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: json.RawMessage(tc.Function.Arguments),
				})
			}
		}
		return status, nil

	case openai.RunStatusFailed, openai.RunStatusExpired:
		status := &RunStatus{State: RunStateFailed}
		if run.LastError != nil {
			status.Failure = run.LastError.Message
		}
		return status, nil

	case openai.RunStatusCancelled, openai.RunStatusCancelling:
		return &RunStatus{State: RunStateCancelled}, nil

	default:
		return &RunStatus{State: RunStateRunning}, nil
	}
}

func (b *assistantBackend) SubmitResults(ctx context.Context, threadID string, runID string, results []SideEffectResult) error {
	outputs := make([]openai.ToolOutput, 0, len(results))
	for _, res := range results {
		outputs = append(outputs, openai.ToolOutput{
			ToolCallID: res.RequestID,
			Output:     res.Output,
		})
	}
	return b.oa.SubmitToolOutputs(ctx, threadID, runID, outputs)
}

func (b *assistantBackend) Cancel(ctx context.Context, threadID string, runID string) error {
	return b.oa.CancelRun(ctx, threadID, runID)
}

func (b *assistantBackend) FetchOutput(ctx context.Context, threadID string) (*TurnOutput, error) {
	messages, err := b.oa.ListMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return ParseAssistantOutput(messages), nil
}
