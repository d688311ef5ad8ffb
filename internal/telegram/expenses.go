package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-telegram/bot/models"

	"kazo/internal/core"
	"kazo/internal/currency"
	"kazo/internal/llm"
	"kazo/internal/log"
	"kazo/internal/pending"
	"kazo/internal/services"
)

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func isRateLimited(err error) bool {
	var rl *llm.RateLimitError
	return errors.As(err, &rl)
}

// promptData collects what every extraction prompt needs.
func (h *Handler) promptData(ctx context.Context, chatID int64) (llm.PromptData, error) {
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return llm.PromptData{}, err
	}
	cats, err := h.Categories.Joined(ctx, chatID)
	if err != nil {
		return llm.PromptData{}, err
	}
	return llm.PromptData{Today: h.today().String(), BaseCurrency: base, Categories: cats}, nil
}

// handleText logs an expense from free text. Texts without any digit cannot
// carry an amount and are classified as a conversational intent instead.
func (h *Handler) handleText(ctx context.Context, msg *models.Message) error {
	chatID := msg.Chat.ID
	if !hasDigit(msg.Text) {
		return h.handleIntent(ctx, msg)
	}

	data, err := h.promptData(ctx, chatID)
	if err != nil {
		return err
	}
	system, err := llm.ParseExpensePrompt(data)
	if err != nil {
		return err
	}
	parsed, err := llm.Decode[llm.ParsedExpense](ctx, h.LLM, llm.Request{
		Prompt:       msg.Text,
		SystemPrompt: system,
		Schema:       llm.ExpenseSchema,
		SchemaName:   "expense",
		ChatID:       chatID,
	})
	if err != nil {
		if isRateLimited(err) {
			return err
		}
		h.log(ctx).WarnContext(ctx, "Failed to parse expense",
			log.FieldChatID, chatID,
			log.FieldError, err)
		return h.reply(ctx, msg, msgParseFailed)
	}
	if parsed.Amount <= 0 {
		return h.reply(ctx, msg, msgInvalidAmount)
	}

	e, err := h.buildExpense(ctx, msg, parsed.Amount, parsed.Currency, parsed.Category, parsed.ExpenseDate, core.SourceText)
	if err != nil {
		return err
	}
	e.Store = deref(parsed.Store)
	e.Note = deref(parsed.Note)
	e.ItemsJSON = itemsJSON(parsed.Items)

	header, err := h.confirmationHeader(ctx, e, "✅ "+orDefault(parsed.Description, "Expense recorded"), data.BaseCurrency)
	if err != nil {
		return err
	}
	_, err = h.workflow.Open(ctx, chatID, pending.Entry{Expense: e, DisplayText: header})
	return err
}

// buildExpense normalizes the extracted fields and converts the amount to
// the chat's base currency.
func (h *Handler) buildExpense(ctx context.Context, msg *models.Message, amount float64, code, category, date string, source core.Source) (core.Expense, error) {
	chatID := msg.Chat.ID
	code, err := currency.Validate(code)
	if err != nil {
		return core.Expense{}, err
	}
	day, err := core.ParseDate(date)
	if err != nil {
		h.log(ctx).WarnContext(ctx, "Invalid extracted date, using today",
			log.FieldChatID, chatID,
			"date", date)
		day = h.today()
	}
	amountBase, rate, err := h.Rates.ConvertToBase(ctx, amount, code, chatID)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		ChatID:       chatID,
		UserID:       userID(msg),
		Amount:       amount,
		Currency:     code,
		AmountBase:   amountBase,
		ExchangeRate: rate,
		Category:     strings.ToLower(strings.TrimSpace(category)),
		Source:       source,
		ExpenseDate:  day,
	}, nil
}

// confirmationHeader renders the part of the confirmation prompt above the
// item list.
func (h *Handler) confirmationHeader(ctx context.Context, e core.Expense, title, base string) (string, error) {
	known, err := h.Categories.Known(ctx, e.ChatID, e.Category)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n💰 ")
	b.WriteString(currency.FormatAmount(e.AmountBase, base))
	b.WriteString(originalNote(e.Amount, e.Currency, base))
	b.WriteString("\n🏷 ")
	b.WriteString(e.Category)
	if !known {
		b.WriteString(" (new category)")
	}
	b.WriteString("\n📅 ")
	b.WriteString(e.ExpenseDate.String())
	if e.Store != "" {
		b.WriteString("\n🏪 ")
		b.WriteString(e.Store)
	}
	if e.Note != "" {
		b.WriteString("\n📝 ")
		b.WriteString(e.Note)
	}
	return b.String(), nil
}

// originalNote shows the amount as entered when it differs from base.
func originalNote(amount float64, code, base string) string {
	if code == base {
		return ""
	}
	return fmt.Sprintf(" (%s %s)", formatNumber(amount), code)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func itemsJSON(items []llm.ParsedItem) string {
	if len(items) == 0 {
		return ""
	}
	b, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return string(b)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func (h *Handler) handleIntent(ctx context.Context, msg *models.Message) error {
	system, err := llm.IntentPrompt()
	if err != nil {
		return err
	}
	intent, err := llm.Decode[llm.Intent](ctx, h.LLM, llm.Request{
		Prompt:       msg.Text,
		SystemPrompt: system,
		Schema:       llm.IntentSchema,
		SchemaName:   "intent",
		ChatID:       msg.Chat.ID,
	})
	if err != nil {
		if isRateLimited(err) {
			return err
		}
		h.log(ctx).WarnContext(ctx, "Intent classification failed",
			log.FieldChatID, msg.Chat.ID,
			log.FieldError, err)
		return nil
	}
	args := strings.TrimSpace(intent.Args)

	switch intent.Intent {
	case llm.IntentUndo:
		return h.cmdUndo(ctx, msg, "")
	case llm.IntentEdit:
		return h.cmdEdit(ctx, msg, "")
	case llm.IntentSummary:
		return h.cmdSummary(ctx, msg, "")
	case llm.IntentQuery:
		return h.answerQuery(ctx, msg)
	case llm.IntentCategories:
		return h.cmdCategories(ctx, msg, "")
	case llm.IntentSubscriptions:
		return h.cmdSubs(ctx, msg, "")
	case llm.IntentRate:
		return h.cmdRate(ctx, msg, "")
	case llm.IntentPrice:
		if args == "" {
			return h.reply(ctx, msg, "What item do you want to check? Try: /price tomatoes")
		}
		return h.cmdPrice(ctx, msg, args)
	case llm.IntentItems:
		return h.cmdItems(ctx, msg, args)
	case llm.IntentSearch:
		if args == "" {
			return h.reply(ctx, msg, "What would you like to search for?")
		}
		return h.cmdSearch(ctx, msg, args)
	case llm.IntentHelp:
		return h.cmdStart(ctx, msg, "")
	case llm.IntentExpense:
		return h.reply(ctx, msg, msgNeedAmount)
	}
	answer, err := h.LLM.Ask(ctx, llm.Request{
		Prompt:       msg.Text,
		SystemPrompt: llm.ChatPrompt,
		ChatID:       msg.Chat.ID,
	})
	if err != nil {
		return err
	}
	return h.reply(ctx, msg, answer)
}

const queryRowLimit = 50

// answerQuery lets the model answer a question over this month's expenses.
func (h *Handler) answerQuery(ctx context.Context, msg *models.Message) error {
	chatID := msg.Chat.ID
	p := services.ParsePeriod("", h.today())
	expenses, err := h.Summary.Between(ctx, chatID, p)
	if err != nil {
		return err
	}
	if len(expenses) == 0 {
		return h.reply(ctx, msg, "No expenses this month to analyze.")
	}
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}
	byCat, _, err := h.Summary.ByCategory(ctx, chatID, p)
	if err != nil {
		return err
	}

	var rows strings.Builder
	for i, e := range expenses {
		if i == queryRowLimit {
			break
		}
		fmt.Fprintf(&rows, "%s | %s | %s | %.2f %s", e.ExpenseDate, orDefault(e.Store, "?"), e.Category, e.AmountBase, base)
		if e.Note != "" {
			rows.WriteString(" | " + e.Note)
		}
		rows.WriteString("\n")
	}
	cats := make([]string, 0, len(byCat))
	for _, c := range byCat {
		cats = append(cats, fmt.Sprintf("%s: %.2f", c.Category, c.Total))
	}
	catText := "none"
	if len(cats) > 0 {
		catText = strings.Join(cats, ", ")
	}

	answer, err := h.LLM.Ask(ctx, llm.Request{
		Prompt: fmt.Sprintf("User question: %s\n\nExpense data (this month, %s):\n%s\nBy category: %s",
			msg.Text, base, rows.String(), catText),
		SystemPrompt: llm.QueryPrompt(base),
		ChatID:       chatID,
	})
	if err != nil {
		return err
	}
	return h.reply(ctx, msg, answer)
}

// handleEditReply applies a correction typed as a reply to a bot message
// linked to an expense. It reports false when the reply is not about an
// expense.
func (h *Handler) handleEditReply(ctx context.Context, msg *models.Message) (bool, error) {
	replyTo := msg.ReplyToMessage
	if replyTo.From == nil || !replyTo.From.IsBot {
		return false, nil
	}
	chatID := msg.Chat.ID
	e, err := h.Expenses.ByBotMessage(ctx, chatID, replyTo.ID)
	if services.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return true, err
	}

	data, err := h.promptData(ctx, chatID)
	if err != nil {
		return true, err
	}
	data.Amount = e.Amount
	data.Currency = e.Currency
	data.AmountBase = e.AmountBase
	data.Category = e.Category
	data.Store = orDefault(e.Store, "none")
	data.ExpenseDate = e.ExpenseDate.String()
	system, err := llm.EditExpensePrompt(data)
	if err != nil {
		return true, err
	}

	changes, err := llm.Decode[llm.ParsedEdit](ctx, h.LLM, llm.Request{
		Prompt:       msg.Text,
		SystemPrompt: system,
		Schema:       llm.EditSchema,
		SchemaName:   "expense_edit",
		ChatID:       chatID,
	})
	if err != nil {
		if isRateLimited(err) {
			return true, err
		}
		h.log(ctx).WarnContext(ctx, "Failed to parse edit",
			log.FieldChatID, chatID,
			log.FieldExpenseID, e.ID,
			log.FieldError, err)
		return true, h.reply(ctx, msg, msgEditFailed)
	}
	if changes.IsEmpty() {
		return true, h.reply(ctx, msg, msgNoChanges)
	}

	patch, err := editPatch(changes)
	if err != nil {
		return true, err
	}
	_, update, err := h.Expenses.ApplyEdit(ctx, e, patch)
	if services.IsNotFound(err) {
		return true, h.reply(ctx, msg, msgUpdateFailed)
	}
	if err != nil {
		return true, err
	}
	return true, h.reply(ctx, msg, "Updated: "+describeUpdate(update, data.BaseCurrency))
}

func editPatch(c llm.ParsedEdit) (core.ExpensePatch, error) {
	p := core.ExpensePatch{
		Amount:   c.Amount,
		Currency: c.Currency,
		Category: c.Category,
	}
	if c.Store.Set {
		p.Store = core.Ptr(deref(c.Store.Value))
	}
	if c.Note.Set {
		p.Note = core.Ptr(deref(c.Note.Value))
	}
	if c.ExpenseDate != nil {
		d, err := core.ParseDate(*c.ExpenseDate)
		if err != nil {
			return core.ExpensePatch{}, err
		}
		p.ExpenseDate = &d
	}
	return p, nil
}

// describeUpdate lists the written fields in a fixed order.
func describeUpdate(u core.ExpenseUpdate, base string) string {
	var parts []string
	if u.Amount != nil && u.Currency != nil {
		parts = append(parts, fmt.Sprintf("Amount: %s %s", formatNumber(*u.Amount), *u.Currency))
	}
	if u.AmountBase != nil {
		parts = append(parts, "Amount: "+currency.FormatAmount(*u.AmountBase, base))
	}
	if u.Category != nil {
		parts = append(parts, "Category: "+*u.Category)
	}
	if u.Store != nil {
		parts = append(parts, "Store: "+orDefault(*u.Store, "none"))
	}
	if u.Note != nil {
		parts = append(parts, "Note: "+orDefault(*u.Note, "none"))
	}
	if u.ExpenseDate != nil {
		parts = append(parts, "Expense Date: "+u.ExpenseDate.String())
	}
	return strings.Join(parts, ", ")
}

func (h *Handler) cmdStart(ctx context.Context, msg *models.Message, _ string) error {
	return h.reply(ctx, msg, startText)
}

func (h *Handler) cmdHelp(ctx context.Context, msg *models.Message, _ string) error {
	return h.reply(ctx, msg, helpText)
}

func (h *Handler) cmdUndo(ctx context.Context, msg *models.Message, _ string) error {
	e, err := h.Expenses.Undo(ctx, msg.Chat.ID)
	if services.IsNotFound(err) {
		return h.reply(ctx, msg, msgNothingToUndo)
	}
	if err != nil {
		return err
	}
	base, err := h.Rates.BaseCurrency(ctx, msg.Chat.ID)
	if err != nil {
		return err
	}
	return h.reply(ctx, msg, fmt.Sprintf("Removed: %s — %s (%s)",
		currency.FormatAmount(e.AmountBase, base), e.Category, e.ExpenseDate))
}

// cmdEdit shows an expense and links the reply so a typed correction can
// find it.
func (h *Handler) cmdEdit(ctx context.Context, msg *models.Message, args string) error {
	chatID := msg.Chat.ID
	var (
		e   core.Expense
		err error
	)
	if id, perr := strconv.ParseInt(args, 10, 64); perr == nil {
		e, err = h.Expenses.ByID(ctx, chatID, id)
		if services.IsNotFound(err) {
			return h.reply(ctx, msg, msgExpenseNotFound)
		}
	} else {
		e, err = h.Expenses.Last(ctx, chatID)
		if services.IsNotFound(err) {
			return h.reply(ctx, msg, msgNoExpenses)
		}
	}
	if err != nil {
		return err
	}

	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Expense #%d:\n💰 %s%s\n🏷 %s\n📅 %s",
		e.ID, currency.FormatAmount(e.AmountBase, base), originalNote(e.Amount, e.Currency, base),
		e.Category, e.ExpenseDate)
	if e.Store != "" {
		b.WriteString("\n🏪 " + e.Store)
	}
	if e.Note != "" {
		b.WriteString("\n📝 " + e.Note)
	}
	b.WriteString("\n\nReply to this message with your correction.")

	sentID, err := h.sender.SendText(ctx, chatID, b.String(), nil)
	if err != nil {
		return err
	}
	return h.Expenses.LinkBotMessage(ctx, chatID, sentID, e.ID)
}

// cmdNote accepts "/note <text>" for the latest expense or "/note <id> <text>".
func (h *Handler) cmdNote(ctx context.Context, msg *models.Message, args string) error {
	if args == "" {
		return h.reply(ctx, msg, "Usage: /note <text> or /note <id> <text>")
	}
	var id *int64
	note := args
	if first, rest, ok := strings.Cut(args, " "); ok {
		if n, err := strconv.ParseInt(first, 10, 64); err == nil && strings.TrimSpace(rest) != "" {
			id = &n
			note = strings.TrimSpace(rest)
		}
	}

	e, err := h.Expenses.AddNote(ctx, msg.Chat.ID, id, note)
	if services.IsNotFound(err) {
		if id != nil {
			return h.reply(ctx, msg, msgExpenseNotFound)
		}
		return h.reply(ctx, msg, msgNoExpenses)
	}
	if err != nil {
		return err
	}
	return h.reply(ctx, msg, fmt.Sprintf("Note added to expense #%d: %s", e.ID, note))
}
