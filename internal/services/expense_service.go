package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kazo/internal/amqp"
	"kazo/internal/core"
	"kazo/internal/currency"
	"kazo/internal/log"
	"kazo/internal/storage"
)

// EventPublisher receives expense change notifications.
type EventPublisher interface {
	Publish(ctx context.Context, event amqp.ExpenseEvent) error
}

type ExpenseMetrics interface {
	ObserveExpenseSaved(source string)
}

type noopExpenseMetrics struct{}

func (noopExpenseMetrics) ObserveExpenseSaved(string) {}

// ExpenseService orchestrates expense writes across SQLite and the event bus.
// Publishing is best effort: a stored expense is never rolled back because
// the broker is unavailable.
type ExpenseService struct {
	storage   *storage.SQLiteRepository
	rates     *currency.Service
	publisher EventPublisher
	metrics   ExpenseMetrics
	logger    *log.Logger
	now       func() time.Time
}

type ExpenseServiceOption func(*ExpenseService)

func WithPublisher(p EventPublisher) ExpenseServiceOption {
	return func(s *ExpenseService) { s.publisher = p }
}

func WithExpenseMetrics(m ExpenseMetrics) ExpenseServiceOption {
	return func(s *ExpenseService) { s.metrics = m }
}

func WithClock(now func() time.Time) ExpenseServiceOption {
	return func(s *ExpenseService) { s.now = now }
}

func NewExpenseService(storage *storage.SQLiteRepository, rates *currency.Service, logger *log.Logger, opts ...ExpenseServiceOption) *ExpenseService {
	if logger == nil {
		logger = log.Discard()
	}
	s := &ExpenseService{
		storage: storage,
		rates:   rates,
		metrics: noopExpenseMetrics{},
		logger:  logger.WithComponent(log.ComponentExpense),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ExpenseService) today() core.Date {
	return core.Today(s.now())
}

// Save stores the expense with its items and announces it.
func (s *ExpenseService) Save(ctx context.Context, e core.Expense) (int64, error) {
	id, err := s.storage.SaveExpense(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}
	s.metrics.ObserveExpenseSaved(string(e.Source))
	s.logger.InfoContext(ctx, "Expense saved",
		log.FieldExpenseID, id,
		log.FieldChatID, e.ChatID,
		log.FieldAmount, e.Amount,
		log.FieldCurrency, e.Currency,
		log.FieldAmountBase, e.AmountBase)
	s.publish(ctx, amqp.EventSaved, id, e.ChatID)
	return id, nil
}

func (s *ExpenseService) LinkBotMessage(ctx context.Context, chatID int64, messageID int, expenseID int64) error {
	return s.storage.LinkBotMessage(ctx, chatID, messageID, expenseID)
}

// ByBotMessage finds the expense a bot message was linked to.
func (s *ExpenseService) ByBotMessage(ctx context.Context, chatID int64, messageID int) (core.Expense, error) {
	return s.storage.ExpenseByBotMessage(ctx, chatID, messageID)
}

func (s *ExpenseService) Last(ctx context.Context, chatID int64) (core.Expense, error) {
	return s.storage.LastExpense(ctx, chatID)
}

// ByID returns the expense only if it belongs to chatID.
func (s *ExpenseService) ByID(ctx context.Context, chatID, id int64) (core.Expense, error) {
	e, err := s.storage.ExpenseByID(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	if e.ChatID != chatID {
		return core.Expense{}, storage.ErrNotFound
	}
	return e, nil
}

// Undo deletes the chat's most recent expense. storage.ErrNotFound means
// there was nothing to delete.
func (s *ExpenseService) Undo(ctx context.Context, chatID int64) (core.Expense, error) {
	e, err := s.storage.DeleteLastExpense(ctx, chatID)
	if err != nil {
		return core.Expense{}, err
	}
	s.logger.InfoContext(ctx, "Expense removed",
		log.FieldExpenseID, e.ID,
		log.FieldChatID, chatID)
	s.publish(ctx, amqp.EventDeleted, e.ID, chatID)
	return e, nil
}

// ApplyEdit validates patch and writes it. When amount or currency change
// the base amount is converted again at the current rate. The returned
// update holds exactly what was written.
func (s *ExpenseService) ApplyEdit(ctx context.Context, e core.Expense, patch core.ExpensePatch) (core.Expense, core.ExpenseUpdate, error) {
	if patch.IsEmpty() {
		return e, core.ExpenseUpdate{}, nil
	}
	if patch.Currency != nil {
		code, err := currency.Validate(*patch.Currency)
		if err != nil {
			return e, core.ExpenseUpdate{}, err
		}
		patch.Currency = &code
	}
	if patch.Category != nil {
		c := strings.ToLower(strings.TrimSpace(*patch.Category))
		patch.Category = &c
	}
	if err := patch.Validate(); err != nil {
		return e, core.ExpenseUpdate{}, err
	}

	update := core.ExpenseUpdate{ExpensePatch: patch}
	if patch.NeedsConversion() {
		amount, code := e.Amount, e.Currency
		if patch.Amount != nil {
			amount = *patch.Amount
		}
		if patch.Currency != nil {
			code = *patch.Currency
		}
		base, rate, err := s.rates.ConvertToBase(ctx, amount, code, e.ChatID)
		if err != nil {
			return e, core.ExpenseUpdate{}, fmt.Errorf("convert edited amount: %w", err)
		}
		update.Amount = &amount
		update.Currency = &code
		update.AmountBase = &base
		update.ExchangeRate = &rate
	}

	ok, err := s.storage.UpdateExpense(ctx, e.ID, update)
	if err != nil {
		return e, core.ExpenseUpdate{}, fmt.Errorf("update expense: %w", err)
	}
	if !ok {
		return e, core.ExpenseUpdate{}, storage.ErrNotFound
	}
	// Item rows carry the expense currency.
	if update.Currency != nil && *update.Currency != e.Currency && e.ItemsJSON != "" {
		if err := s.storage.ReplaceItems(ctx, e.ID, core.ParseItems(e.ItemsJSON, *update.Currency)); err != nil {
			return e, core.ExpenseUpdate{}, fmt.Errorf("update item currency: %w", err)
		}
	}
	s.publish(ctx, amqp.EventUpdated, e.ID, e.ChatID)
	return update.Apply(e), update, nil
}

// AddNote sets the note of expense id, or of the latest expense when id is
// nil.
func (s *ExpenseService) AddNote(ctx context.Context, chatID int64, id *int64, note string) (core.Expense, error) {
	var (
		e   core.Expense
		err error
	)
	if id != nil {
		e, err = s.ByID(ctx, chatID, *id)
	} else {
		e, err = s.storage.LastExpense(ctx, chatID)
	}
	if err != nil {
		return core.Expense{}, err
	}
	updated, _, err := s.ApplyEdit(ctx, e, core.ExpensePatch{Note: &note})
	return updated, err
}

func (s *ExpenseService) publish(ctx context.Context, t amqp.EventType, expenseID, chatID int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, amqp.NewExpenseEvent(t, expenseID, chatID)); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish expense event",
			"type", t,
			log.FieldExpenseID, expenseID,
			log.FieldError, err)
	}
}

// IsNotFound reports whether err means the expense does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
