package worker

import (
	"context"
	"errors"
	"fmt"

	"kazo/internal/amqp"
	"kazo/internal/core"
	"kazo/internal/log"
	"kazo/internal/sheets"
	"kazo/internal/storage"
)

// ExpenseSource reads expenses from the shared database.
type ExpenseSource interface {
	ExpenseByID(ctx context.Context, id int64) (core.Expense, error)
	ExpensesBetween(ctx context.Context, chatID int64, from, to core.Date) ([]core.Expense, error)
}

type Metrics interface {
	ObserveSync(event string, ok bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSync(string, bool) {}

// SyncWorker mirrors expense events into a spreadsheet.
type SyncWorker struct {
	source  ExpenseSource
	mirror  sheets.Mirror
	logger  *log.Logger
	metrics Metrics
}

func NewSyncWorker(source ExpenseSource, mirror sheets.Mirror, logger *log.Logger, metrics Metrics) *SyncWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &SyncWorker{
		source:  source,
		mirror:  mirror,
		logger:  logger.WithComponent(log.ComponentWorker),
		metrics: metrics,
	}
}

// HandleEvent applies one event. It is the amqp consumer handler: a
// returned error requeues the message once.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev amqp.ExpenseEvent) error {
	w.logger.InfoContext(ctx, "Processing expense event",
		"type", ev.Type,
		"message_id", ev.MessageID,
		log.FieldExpenseID, ev.ExpenseID,
		log.FieldChatID, ev.ChatID)

	var err error
	switch ev.Type {
	case amqp.EventSaved, amqp.EventUpdated:
		err = w.sync(ctx, ev.ExpenseID)
	case amqp.EventDeleted:
		err = w.mirror.DeleteExpense(ctx, ev.ExpenseID)
	default:
		err = fmt.Errorf("unknown event type %q", ev.Type)
	}
	w.metrics.ObserveSync(string(ev.Type), err == nil)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to mirror expense",
			"type", ev.Type,
			log.FieldExpenseID, ev.ExpenseID,
			log.FieldError, err)
	}
	return err
}

func (w *SyncWorker) sync(ctx context.Context, id int64) error {
	e, err := w.source.ExpenseByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted before the event was consumed; the delete event follows.
		w.logger.WarnContext(ctx, "Expense no longer exists, clearing row", log.FieldExpenseID, id)
		return w.mirror.DeleteExpense(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}
	if _, err := w.mirror.Upsert(ctx, e); err != nil {
		return fmt.Errorf("upsert row: %w", err)
	}
	return nil
}

// Backfill mirrors every expense of chatIDs dated between from and to. It
// recovers rows missed while the worker was down and keeps going past
// individual failures.
func (w *SyncWorker) Backfill(ctx context.Context, chatIDs []int64, from, to core.Date) (synced, failed int, err error) {
	for _, chatID := range chatIDs {
		expenses, err := w.source.ExpensesBetween(ctx, chatID, from, to)
		if err != nil {
			return synced, failed, fmt.Errorf("list expenses for chat %d: %w", chatID, err)
		}
		for _, e := range expenses {
			if ctx.Err() != nil {
				return synced, failed, ctx.Err()
			}
			if _, err := w.mirror.Upsert(ctx, e); err != nil {
				w.logger.ErrorContext(ctx, "Backfill failed for expense",
					log.FieldExpenseID, e.ID,
					log.FieldError, err)
				failed++
				continue
			}
			synced++
		}
	}
	w.logger.InfoContext(ctx, "Backfill completed",
		"chats", len(chatIDs),
		"synced", synced,
		"errors", failed)
	return synced, failed, nil
}
