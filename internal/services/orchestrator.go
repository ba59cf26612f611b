package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/GOGOSCHNO/assistantai1/internal/data/repos/conversation"
	"github.com/GOGOSCHNO/assistantai1/internal/domain"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/dbctx"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

// batchSeparator joins a burst of rapid-fire messages into one combined turn.
const batchSeparator = ". "

// Orchestrator coordinates one inbound event end to end: dedup admission,
// conversation queueing, job polling, turn persistence and reply delivery.
type Orchestrator struct {
	log       *logger.Logger
	db        *gorm.DB
	queue     *ConversationQueue
	ledger    Ledger
	backend   RunBackend
	poller    *RunPoller
	transport Transport
	threads   conversation.ThreadRepo
	turns     conversation.TurnRepo
}

func NewOrchestrator(
	log *logger.Logger,
	db *gorm.DB,
	queue *ConversationQueue,
	ledger Ledger,
	backend RunBackend,
	poller *RunPoller,
	transport Transport,
	threads conversation.ThreadRepo,
	turns conversation.TurnRepo,
) *Orchestrator {
	return &Orchestrator{
		log:       log.With("service", "Orchestrator"),
		db:        db,
		queue:     queue,
		ledger:    ledger,
		backend:   backend,
		poller:    poller,
		transport: transport,
		threads:   threads,
		turns:     turns,
	}
}

// HandleInbound processes one webhook event. A false admission returns
// ErrDuplicateEvent; the caller acks success either way so the provider
// stops retrying. When another processor owns the conversation the message
// is left in its mailbox and this call returns immediately.
func (o *Orchestrator) HandleInbound(ctx context.Context, ev InboundEvent) error {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return ErrEmptyContent
	}

	admitted, err := o.ledger.Admit(ctx, ev.EventID)
	if err != nil {
		return fmt.Errorf("dedup admit: %w", err)
	}
	if !admitted {
		o.log.Debug("Duplicate event dropped", "event_id", ev.EventID)
		return ErrDuplicateEvent
	}

	o.queue.Enqueue(ev.ConversationID, text)
	if !o.queue.TryAcquire(ev.ConversationID) {
		return nil
	}

	o.runConversation(ctx, ev.ConversationID)
	return nil
}

// runConversation is the owning processor's drain loop. The caller must hold
// the conversation lock. Every exit path releases it, and a release is always
// followed by a stranding check: a message that arrived between the final
// drain and the release must get a new owner.
func (o *Orchestrator) runConversation(ctx context.Context, conversationID string) {
	for {
		batch := o.queue.DrainAll(conversationID)
		if len(batch) == 0 {
			o.queue.Release(conversationID)
			if o.queue.PendingLen(conversationID) > 0 && o.queue.TryAcquire(conversationID) {
				continue
			}
			return
		}

		raced := o.processBatch(ctx, conversationID, batch)
		if raced {
			// The raced messages were requeued together with this batch.
			// Hand the lock back and re-contend for it so the combined turn
			// runs fresh.
			o.queue.Release(conversationID)
			if o.queue.TryAcquire(conversationID) {
				continue
			}
			return
		}
	}
}

// processBatch submits one combined turn and drives it to completion. The
// returned flag reports whether new messages arrived during submission; in
// that case they have been requeued (ahead of nothing, behind nothing new)
// together with this batch, and this run's answer — stale relative to the
// newer input — is still delivered for the batch actually submitted.
func (o *Orchestrator) processBatch(ctx context.Context, conversationID string, batch []string) (raced bool) {
	joined := strings.Join(batch, batchSeparator)

	threadID, err := o.ensureThread(ctx, conversationID)
	if err != nil {
		o.log.Error("Thread resolution failed",
			"conversation_id", conversationID,
			"error", err.Error(),
		)
		return false
	}

	prompt := BuildTurnPrompt(joined, conversationID, time.Now())
	runID, err := o.backend.SubmitTurn(ctx, threadID, prompt)
	if err != nil {
		o.log.Error("Turn submission failed",
			"conversation_id", conversationID,
			"error", err.Error(),
		)
		return false
	}

	if o.queue.PendingLen(conversationID) > 0 {
		raced = true
		o.queue.RequeueFront(conversationID, batch)
		o.log.Info("Messages arrived during submission, batch requeued",
			"conversation_id", conversationID,
			"batch_len", len(batch),
		)
	}

	out, err := o.poller.Poll(ctx, threadID, runID)
	if err != nil {
		// No reply for this turn; the failure is operator-visible only.
		o.log.Error("Assistant run did not complete",
			"conversation_id", conversationID,
			"run_id", runID,
			"error", err.Error(),
		)
		return raced
	}

	o.persistTurn(ctx, conversationID, threadID, joined, out)
	o.deliver(ctx, conversationID, out)
	return raced
}

func (o *Orchestrator) ensureThread(ctx context.Context, conversationID string) (string, error) {
	dbc := dbctx.Context{Ctx: ctx}

	row, err := o.threads.GetByConversationID(dbc, conversationID)
	if err != nil {
		return "", fmt.Errorf("lookup thread mapping: %w", err)
	}
	if row != nil {
		return row.ThreadID, nil
	}

	threadID, err := o.backend.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}

	// A concurrent first turn may have won the insert; the mapping is 1:1,
	// so read back whichever thread id landed. Insert and re-read share a
	// transaction so the winner's row is visible.
	persist := func(txc dbctx.Context) error {
		if err := o.threads.Create(txc, &domain.ConversationThread{
			ConversationID: conversationID,
			ThreadID:       threadID,
		}); err != nil {
			return fmt.Errorf("persist thread mapping: %w", err)
		}
		winner, err := o.threads.GetByConversationID(txc, conversationID)
		if err != nil {
			return fmt.Errorf("re-read thread mapping: %w", err)
		}
		if winner != nil {
			threadID = winner.ThreadID
		}
		return nil
	}

	if o.db != nil {
		err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return persist(dbctx.Context{Ctx: ctx, Tx: tx})
		})
	} else {
		err = persist(dbc)
	}
	if err != nil {
		return "", err
	}
	return threadID, nil
}

func (o *Orchestrator) persistTurn(ctx context.Context, conversationID string, threadID string, userMessage string, out *TurnOutput) {
	urls := out.ImageURLs
	if urls == nil {
		urls = []string{}
	}
	rawURLs, _ := json.Marshal(urls)

	err := o.turns.Append(dbctx.Context{Ctx: ctx}, &domain.ConversationTurn{
		ConversationID: conversationID,
		ThreadID:       threadID,
		UserMessage:    userMessage,
		AssistantText:  out.Text,
		ImageURLs:      rawURLs,
	})
	if err != nil {
		o.log.Error("Turn record insert failed",
			"conversation_id", conversationID,
			"error", err.Error(),
		)
	}
}

func (o *Orchestrator) deliver(ctx context.Context, conversationID string, out *TurnOutput) {
	if strings.TrimSpace(out.Text) != "" {
		if err := o.transport.SendText(ctx, conversationID, out.Text); err != nil {
			o.log.Error("Text reply send failed",
				"conversation_id", conversationID,
				"error", err.Error(),
			)
		}
	}
	for _, url := range out.ImageURLs {
		if strings.TrimSpace(url) == "" {
			continue
		}
		if err := o.transport.SendImage(ctx, conversationID, url); err != nil {
			o.log.Error("Image reply send failed",
				"conversation_id", conversationID,
				"url", url,
				"error", err.Error(),
			)
		}
	}
}
