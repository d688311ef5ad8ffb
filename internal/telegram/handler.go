package telegram

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/go-telegram/bot/models"

	"kazo/internal/core"
	"kazo/internal/currency"
	"kazo/internal/export"
	"kazo/internal/llm"
	"kazo/internal/log"
	"kazo/internal/pending"
	"kazo/internal/services"
)

type Metrics interface {
	pending.Metrics
	ObserveCommand(command string)
	ObserveMessage(kind string)
	ObserveError(kind string)
	ObserveRateLimited()
}

type noopMetrics struct{}

func (noopMetrics) ObservePending(string) {}
func (noopMetrics) ObserveCommand(string) {}
func (noopMetrics) ObserveMessage(string) {}
func (noopMetrics) ObserveError(string)   {}
func (noopMetrics) ObserveRateLimited()   {}

// Settings is what /settings reports about the running process.
type Settings struct {
	Backend string
	Model   string
}

// Deps are the collaborators the handlers dispatch to.
type Deps struct {
	Expenses      *services.ExpenseService
	Subscriptions *services.SubscriptionService
	Budgets       *services.BudgetService
	Categories    *services.CategoryService
	Summary       *services.SummaryService
	Rates         *currency.Service
	LLM           llm.Client
	Registry      *pending.Registry
	Backup        export.Backuper
	Metrics       Metrics
	Settings      Settings
}

type commandFunc func(ctx context.Context, msg *models.Message, args string) error

// Handler turns inbound messages and callbacks into service calls and
// replies. It is independent of the polling loop so it can be driven
// directly.
type Handler struct {
	Deps
	sender   Sender
	workflow *pending.Workflow
	logger   *log.Logger
	commands map[string]commandFunc
}

func NewHandler(sender Sender, deps Deps, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Discard()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Registry == nil {
		deps.Registry = pending.NewRegistry(pending.DefaultTTL, nil)
	}
	h := &Handler{
		Deps:   deps,
		sender: sender,
		logger: logger.WithComponent(log.ComponentBot),
	}
	h.workflow = pending.NewWorkflow(deps.Registry, sender, deps.Expenses, logger, deps.Metrics)
	h.commands = map[string]commandFunc{
		"start":          h.cmdStart,
		"help":           h.cmdHelp,
		"undo":           h.cmdUndo,
		"edit":           h.cmdEdit,
		"note":           h.cmdNote,
		"summary":        h.cmdSummary,
		"monthly":        h.cmdMonthly,
		"daily":          h.cmdDaily,
		"stats":          h.cmdStats,
		"search":         h.cmdSearch,
		"budget":         h.cmdBudget,
		"setbudget":      h.cmdSetBudget,
		"removebudget":   h.cmdRemoveBudget,
		"export":         h.cmdExport,
		"backup":         h.cmdBackup,
		"price":          h.cmdPrice,
		"items":          h.cmdItems,
		"compare":        h.cmdCompare,
		"subs":           h.cmdSubs,
		"addsub":         h.cmdAddSub,
		"removesub":      h.cmdRemoveSub,
		"categories":     h.cmdCategories,
		"addcategory":    h.cmdAddCategory,
		"removecategory": h.cmdRemoveCategory,
		"setcurrency":    h.cmdSetCurrency,
		"rate":           h.cmdRate,
		"settings":       h.cmdSettings,
	}
	return h
}

func (h *Handler) log(ctx context.Context) *log.Logger {
	return log.FromContextOr(ctx, h.logger)
}

func (h *Handler) today() core.Date {
	return h.Summary.Today()
}

// HandleMessage routes one inbound message. Errors never escape; they are
// logged and answered inside the chat.
func (h *Handler) HandleMessage(ctx context.Context, msg *models.Message) {
	if msg == nil {
		return
	}
	kind := messageKind(msg)
	h.Metrics.ObserveMessage(kind)
	h.guard(ctx, msg.Chat.ID, kind, func() error {
		return h.dispatch(ctx, msg)
	})
}

func messageKind(msg *models.Message) string {
	switch {
	case strings.HasPrefix(msg.Text, "/"):
		return "command"
	case msg.Text != "":
		return "text"
	case len(msg.Photo) > 0:
		return "photo"
	case msg.Document != nil:
		return "document"
	}
	return "other"
}

func (h *Handler) dispatch(ctx context.Context, msg *models.Message) error {
	switch {
	case strings.HasPrefix(msg.Text, "/"):
		name, args := splitCommand(msg.Text)
		cmd, ok := h.commands[name]
		if !ok {
			return h.reply(ctx, msg, msgUnknownCommand)
		}
		h.Metrics.ObserveCommand(name)
		return cmd(ctx, msg, args)
	case msg.Text != "":
		if msg.ReplyToMessage != nil {
			handled, err := h.handleEditReply(ctx, msg)
			if handled || err != nil {
				return err
			}
		}
		return h.handleText(ctx, msg)
	case len(msg.Photo) > 0:
		return h.handlePhoto(ctx, msg)
	case msg.Document != nil:
		return h.handleDocument(ctx, msg)
	}
	return nil
}

// HandleCallback forwards an inline button press to the pending workflow.
func (h *Handler) HandleCallback(ctx context.Context, cq *models.CallbackQuery) {
	if cq == nil {
		return
	}
	msg := cq.Message.Message
	if msg == nil {
		if err := h.sender.AnswerCallback(ctx, cq.ID, pending.MsgExpired); err != nil {
			h.log(ctx).WarnContext(ctx, "Failed to answer callback", log.FieldError, err)
		}
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.Metrics.ObserveError("panic")
			h.log(ctx).ErrorContext(ctx, "Callback handler panicked",
				log.FieldChatID, msg.Chat.ID,
				log.FieldError, fmt.Sprint(r),
				log.FieldStack, string(debug.Stack()))
			_ = h.sender.AnswerCallback(ctx, cq.ID, msgCallbackError)
		}
	}()
	err := h.workflow.HandleCallback(ctx, pending.Callback{
		ID:        cq.ID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		Data:      cq.Data,
	})
	if err == nil {
		return
	}
	h.Metrics.ObserveError("callback")
	h.log(ctx).ErrorContext(ctx, "Callback failed",
		log.FieldChatID, msg.Chat.ID,
		log.FieldMessageID, msg.ID,
		log.FieldError, err)
	if err := h.sender.AnswerCallback(ctx, cq.ID, msgCallbackError); err != nil {
		h.log(ctx).WarnContext(ctx, "Failed to answer callback", log.FieldError, err)
	}
}

// guard runs fn and turns its error or panic into a chat reply.
func (h *Handler) guard(ctx context.Context, chatID int64, handler string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			h.Metrics.ObserveError("panic")
			h.log(ctx).ErrorContext(ctx, "Handler panicked",
				log.FieldChatID, chatID,
				log.FieldHandler, handler,
				log.FieldError, fmt.Sprint(r),
				log.FieldStack, string(debug.Stack()))
			h.send(ctx, chatID, msgGenericError)
		}
	}()
	if err := fn(); err != nil {
		h.send(ctx, chatID, h.errorReply(ctx, chatID, handler, err))
	}
}

func (h *Handler) errorReply(ctx context.Context, chatID int64, handler string, err error) string {
	var (
		rateErr     *llm.RateLimitError
		currencyErr *currency.InvalidCurrencyError
		validErr    *core.ValidationError
	)
	switch {
	case errors.As(err, &rateErr):
		h.Metrics.ObserveRateLimited()
		h.log(ctx).InfoContext(ctx, "Chat rate limited", log.FieldChatID, chatID, log.FieldHandler, handler)
		return fmt.Sprintf(msgRateLimited, rateErr.Limit)
	case errors.As(err, &currencyErr):
		return currencyErr.Error()
	case errors.As(err, &validErr):
		return "Invalid " + validErr.Field + ": " + validErr.Msg + "."
	}
	h.Metrics.ObserveError(handler)
	h.log(ctx).ErrorContext(ctx, "Handler failed",
		log.FieldChatID, chatID,
		log.FieldHandler, handler,
		log.FieldError, err,
		log.FieldStack, string(debug.Stack()))
	return msgGenericError
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	if _, err := h.sender.SendText(ctx, chatID, text, nil); err != nil {
		h.log(ctx).WarnContext(ctx, "Failed to send reply",
			log.FieldChatID, chatID,
			log.FieldError, err)
	}
}

func (h *Handler) reply(ctx context.Context, msg *models.Message, text string) error {
	_, err := h.sender.SendText(ctx, msg.Chat.ID, text, nil)
	return err
}

// splitCommand turns "/summary@kazo_bot week" into ("summary", "week").
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(strings.TrimPrefix(text, "/"))
	name, args, _ := strings.Cut(text, " ")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if j := strings.IndexAny(name, "\n\t"); j >= 0 {
		args = name[j+1:] + " " + args
		name = name[:j]
	}
	return strings.ToLower(name), strings.TrimSpace(args)
}

func userID(msg *models.Message) int64 {
	if msg.From == nil {
		return 0
	}
	return msg.From.ID
}
