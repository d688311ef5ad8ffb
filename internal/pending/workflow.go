package pending

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot/models"

	"kazo/internal/core"
	"kazo/internal/currency"
	"kazo/internal/log"
)

// User-facing texts.
const (
	MsgExpired      = "This expense has expired or was already handled."
	MsgSaved        = "Expense saved!"
	MsgCancelled    = "Expense cancelled."
	MsgCancelledAck = "Cancelled."
	MsgAllRemoved   = "All items removed — expense cancelled."
	MsgNoItems      = "No items to edit."
	MsgEditPrompt   = "Tap an item to remove it."
)

// Outcomes reported to Metrics.
const (
	OutcomeOpened    = "opened"
	OutcomeConfirmed = "confirmed"
	OutcomeCancelled = "cancelled"
	OutcomeExpired   = "expired"
	OutcomeEdited    = "item_removed"
)

// Messenger is the slice of the chat transport the workflow needs. A nil
// markup removes the inline keyboard.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, markup models.ReplyMarkup) error
	ClearKeyboard(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Saver persists confirmed expenses.
type Saver interface {
	Save(ctx context.Context, e core.Expense) (int64, error)
	LinkBotMessage(ctx context.Context, chatID int64, messageID int, expenseID int64) error
	RecurringSuggestion(ctx context.Context, e core.Expense) (string, error)
}

type Metrics interface {
	ObservePending(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObservePending(string) {}

// Callback is an inline button press on a confirmation message.
type Callback struct {
	ID        string
	ChatID    int64
	MessageID int
	Data      string
}

func (c Callback) key() Key {
	return Key{ChatID: c.ChatID, MessageID: c.MessageID}
}

type Workflow struct {
	registry  *Registry
	messenger Messenger
	saver     Saver
	logger    *log.Logger
	metrics   Metrics
}

func NewWorkflow(registry *Registry, messenger Messenger, saver Saver, logger *log.Logger, metrics Metrics) *Workflow {
	if logger == nil {
		logger = log.Discard()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Workflow{
		registry:  registry,
		messenger: messenger,
		saver:     saver,
		logger:    logger.WithComponent(log.ComponentPending),
		metrics:   metrics,
	}
}

func (w *Workflow) Registry() *Registry {
	return w.registry
}

// Render is the confirmation text for an entry: the header followed by the
// current item list.
func Render(e Entry) string {
	return e.DisplayText + FormatItems(e.Items)
}

// Open sends the confirmation prompt and registers the entry under the sent
// message. It returns the prompt's message id.
func (w *Workflow) Open(ctx context.Context, chatID int64, e Entry) (int, error) {
	if e.Items == nil {
		e.Items = core.ParseItems(e.Expense.ItemsJSON, e.Expense.Currency)
	}
	msgID, err := w.messenger.SendText(ctx, chatID, Render(e), ConfirmationKeyboard(len(e.Items) > 0))
	if err != nil {
		return 0, fmt.Errorf("send confirmation: %w", err)
	}
	w.registry.Put(Key{ChatID: chatID, MessageID: msgID}, e)
	w.metrics.ObservePending(OutcomeOpened)
	w.logger.DebugContext(ctx, "Pending expense registered",
		log.FieldChatID, chatID,
		log.FieldMessageID, msgID,
		log.FieldAmount, e.Expense.Amount,
		log.FieldCurrency, e.Expense.Currency)
	return msgID, nil
}

// HandleCallback dispatches a button press. Unknown data is ignored.
func (w *Workflow) HandleCallback(ctx context.Context, cb Callback) error {
	switch cb.Data {
	case CallbackConfirm:
		return w.Confirm(ctx, cb)
	case CallbackCancel:
		return w.Cancel(ctx, cb)
	case CallbackEditItems:
		return w.EditItems(ctx, cb)
	}
	if i, ok := ParseRemove(cb.Data); ok {
		return w.RemoveItem(ctx, cb, i)
	}
	return nil
}

func (w *Workflow) expired(ctx context.Context, cb Callback) error {
	w.metrics.ObservePending(OutcomeExpired)
	if err := w.messenger.AnswerCallback(ctx, cb.ID, MsgExpired); err != nil {
		return err
	}
	return w.messenger.ClearKeyboard(ctx, cb.ChatID, cb.MessageID)
}

// Confirm pops the entry and saves it. After item edits the amounts are
// recomputed from the remaining priced items at the rate captured when the
// entry was opened.
func (w *Workflow) Confirm(ctx context.Context, cb Callback) error {
	e, ok := w.registry.Pop(cb.key())
	if !ok {
		return w.expired(ctx, cb)
	}

	exp := e.Expense
	if e.ItemsEdited {
		exp = Recompute(exp, e.Items)
	}

	id, err := w.saver.Save(ctx, exp)
	if err != nil {
		return fmt.Errorf("save confirmed expense: %w", err)
	}
	exp.ID = id
	w.metrics.ObservePending(OutcomeConfirmed)

	if err := w.saver.LinkBotMessage(ctx, cb.ChatID, cb.MessageID, id); err != nil {
		w.logger.WarnContext(ctx, "Failed to link confirmation message",
			log.FieldChatID, cb.ChatID,
			log.FieldExpenseID, id,
			log.FieldError, err)
	}

	text := Render(e)
	if e.ItemsEdited {
		text += "\n💰 Total: " + currency.FormatAmount(exp.Amount, exp.Currency)
	}
	text += "\n\nSaved."

	suggestion, err := w.saver.RecurringSuggestion(ctx, exp)
	if err != nil {
		w.logger.WarnContext(ctx, "Recurring check failed",
			log.FieldChatID, cb.ChatID,
			log.FieldExpenseID, id,
			log.FieldError, err)
	}
	if suggestion != "" {
		text += "\n\n" + suggestion
	}

	w.logger.InfoContext(ctx, "Expense confirmed",
		log.FieldChatID, cb.ChatID,
		log.FieldExpenseID, id,
		log.FieldAmountBase, exp.AmountBase)

	if err := w.messenger.EditText(ctx, cb.ChatID, cb.MessageID, text, nil); err != nil {
		return err
	}
	return w.messenger.AnswerCallback(ctx, cb.ID, MsgSaved)
}

// Cancel pops the entry without saving.
func (w *Workflow) Cancel(ctx context.Context, cb Callback) error {
	if _, ok := w.registry.Pop(cb.key()); !ok {
		return w.expired(ctx, cb)
	}
	w.metrics.ObservePending(OutcomeCancelled)
	if err := w.messenger.EditText(ctx, cb.ChatID, cb.MessageID, MsgCancelled, nil); err != nil {
		return err
	}
	return w.messenger.AnswerCallback(ctx, cb.ID, MsgCancelledAck)
}

// EditItems switches the prompt to the item editing keyboard.
func (w *Workflow) EditItems(ctx context.Context, cb Callback) error {
	e, ok := w.registry.Get(cb.key())
	if !ok {
		return w.expired(ctx, cb)
	}
	if len(e.Items) == 0 {
		return w.messenger.AnswerCallback(ctx, cb.ID, MsgNoItems)
	}
	text := Render(e) + "\n\n" + MsgEditPrompt
	if err := w.messenger.EditText(ctx, cb.ChatID, cb.MessageID, text, ItemsKeyboard(e.Items)); err != nil {
		return err
	}
	return w.messenger.AnswerCallback(ctx, cb.ID, "")
}

// RemoveItem drops item i. Removing the last item cancels the entry.
func (w *Workflow) RemoveItem(ctx context.Context, cb Callback, i int) error {
	var (
		removed   core.ExpenseItem
		inRange   bool
		cancelled bool
	)
	e, ok := w.registry.Mutate(cb.key(), func(e *Entry) bool {
		if i < 0 || i >= len(e.Items) {
			return false
		}
		inRange = true
		removed = e.Items[i]
		items := make([]core.ExpenseItem, 0, len(e.Items)-1)
		items = append(items, e.Items[:i]...)
		items = append(items, e.Items[i+1:]...)
		e.Items = items
		e.ItemsEdited = true
		cancelled = len(items) == 0
		return cancelled
	})
	if !ok {
		return w.expired(ctx, cb)
	}
	if !inRange {
		// Stale keyboard from an earlier render.
		if err := w.messenger.EditText(ctx, cb.ChatID, cb.MessageID, Render(e)+"\n\n"+MsgEditPrompt, ItemsKeyboard(e.Items)); err != nil {
			return err
		}
		return w.messenger.AnswerCallback(ctx, cb.ID, "")
	}

	w.metrics.ObservePending(OutcomeEdited)
	if cancelled {
		w.metrics.ObservePending(OutcomeCancelled)
		if err := w.messenger.EditText(ctx, cb.ChatID, cb.MessageID, MsgAllRemoved, nil); err != nil {
			return err
		}
		return w.messenger.AnswerCallback(ctx, cb.ID, "Removed "+removed.Name)
	}

	text := Render(e) + "\n💰 Items total: " + fmt.Sprintf("%.2f %s", core.PricedSum(e.Items), e.Expense.Currency) +
		"\n\n" + MsgEditPrompt
	if err := w.messenger.EditText(ctx, cb.ChatID, cb.MessageID, text, ItemsKeyboard(e.Items)); err != nil {
		return err
	}
	return w.messenger.AnswerCallback(ctx, cb.ID, "Removed "+removed.Name)
}

// Recompute sets amount to the raw sum of the remaining priced items and
// scales amount_base by the original amount_base/amount ratio. Only
// amount_base is rounded. When nothing priced remains the original amounts
// are kept.
func Recompute(e core.Expense, items []core.ExpenseItem) core.Expense {
	sum := core.PricedSum(items)
	e.ItemsJSON = core.ItemsJSON(items)
	if sum <= 0 || e.Amount <= 0 {
		return e
	}
	ratio := e.AmountBase / e.Amount
	e.Amount = sum
	e.AmountBase = core.RoundMoney(sum * ratio)
	return e
}
