package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"kazo/internal/charts"
	"kazo/internal/core"
	"kazo/internal/currency"
	"kazo/internal/export"
	"kazo/internal/log"
	"kazo/internal/services"
)

const (
	monthlyHistory  = 6
	dailyWindowDays = 30
	searchShown     = 10
	// Telegram rejects longer photo captions.
	maxCaption = 1024
)

// sendChart sends text as the caption of the rendered chart. Without a
// chart, or when rendering fails, only the text is sent.
func (h *Handler) sendChart(ctx context.Context, msg *models.Message, png []byte, chartErr error, text string) error {
	if chartErr != nil {
		if !errors.Is(chartErr, charts.ErrNoData) {
			h.log(ctx).WarnContext(ctx, "Chart rendering failed",
				log.FieldChatID, msg.Chat.ID,
				log.FieldError, chartErr)
		}
		return h.reply(ctx, msg, text)
	}
	caption := text
	if len(caption) > maxCaption {
		caption = ""
	}
	if err := h.sender.SendPhoto(ctx, msg.Chat.ID, "chart.png", bytes.NewReader(png), caption); err != nil {
		return err
	}
	if caption == "" {
		return h.reply(ctx, msg, text)
	}
	return nil
}

func (h *Handler) budgetLines(ctx context.Context, chatID int64, p services.Period, base string) (string, error) {
	statuses, err := h.Budgets.VsActual(ctx, chatID, p.From, p.To)
	if err != nil || len(statuses) == 0 {
		return "", err
	}
	lines := make([]string, 0, len(statuses))
	for _, st := range statuses {
		lines = append(lines, fmt.Sprintf("  %s: %s %.0f%% (%s left)",
			budgetLabel(st.Category), services.ProgressBar(st.Pct), st.Pct, currency.FormatAmount(st.Remaining, base)))
	}
	return "\n\n💰 Budget:\n" + strings.Join(lines, "\n"), nil
}

func budgetLabel(category *string) string {
	if category == nil {
		return "Total"
	}
	return *category
}

func (h *Handler) cmdSummary(ctx context.Context, msg *models.Message, args string) error {
	chatID := msg.Chat.ID
	p := services.ParsePeriod(args, h.today())
	rows, total, err := h.Summary.ByCategory(ctx, chatID, p)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return h.reply(ctx, msg, "No expenses for "+p.Label+".")
	}
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("📊 Summary for " + p.Label + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "\n• %s: %s (%d items)", orDefault(r.Category, "uncategorized"), currency.FormatAmount(r.Total, base), r.Count)
	}
	b.WriteString("\n\nTotal: " + currency.FormatAmount(total, base))
	budget, err := h.budgetLines(ctx, chatID, p, base)
	if err != nil {
		return err
	}
	b.WriteString(budget)

	png, chartErr := charts.CategoryBreakdown(rows, base)
	return h.sendChart(ctx, msg, png, chartErr, b.String())
}

func (h *Handler) cmdMonthly(ctx context.Context, msg *models.Message, _ string) error {
	chatID := msg.Chat.ID
	rows, err := h.Summary.Monthly(ctx, chatID, monthlyHistory)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return h.reply(ctx, msg, "No expense history yet.")
	}
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("📈 Monthly spending:\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "\n• %s: %s (%d items)", r.Month, currency.FormatAmount(r.Total, base), r.Count)
	}
	png, chartErr := charts.MonthlyTrend(rows, base)
	return h.sendChart(ctx, msg, png, chartErr, b.String())
}

func (h *Handler) cmdDaily(ctx context.Context, msg *models.Message, _ string) error {
	chatID := msg.Chat.ID
	rows, _, err := h.Summary.Daily(ctx, chatID, dailyWindowDays)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return h.reply(ctx, msg, "No expenses in the last 30 days.")
	}
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}
	var total float64
	for _, r := range rows {
		total += r.Total
	}
	text := fmt.Sprintf("Daily spending (last %d days)\n\nTotal: %s\nDaily avg: %s",
		dailyWindowDays, currency.FormatAmount(total, base), currency.FormatAmount(total/dailyWindowDays, base))

	budget, _, err := h.Budgets.OverallBudget(ctx, chatID)
	if err != nil {
		return err
	}
	png, chartErr := charts.DailySpending(rows, base, budget)
	return h.sendChart(ctx, msg, png, chartErr, text)
}

func (h *Handler) cmdStats(ctx context.Context, msg *models.Message, _ string) error {
	chatID := msg.Chat.ID
	st, ok, err := h.Summary.Stats(ctx, chatID)
	if err != nil {
		return err
	}
	if !ok {
		return h.reply(ctx, msg, "No expenses recorded yet.")
	}
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}
	lines := []string{
		"📊 All-time Stats\n",
		fmt.Sprintf("Total expenses: %d", st.Count),
		"Total spent: " + currency.FormatAmount(st.Total, base),
		"Average expense: " + currency.FormatAmount(st.AvgExpense, base),
		"Biggest expense: " + currency.FormatAmount(st.MaxExpense, base),
		"First expense: " + st.FirstDate,
		"Latest expense: " + st.LastDate,
	}
	if len(st.TopCategories) > 0 {
		lines = append(lines, "\nTop categories:")
		for _, c := range st.TopCategories {
			lines = append(lines, fmt.Sprintf("  • %s: %s", orDefault(c.Category, "uncategorized"), currency.FormatAmount(c.Total, base)))
		}
	}
	if len(st.TopStores) > 0 {
		lines = append(lines, "\nTop stores:")
		for _, s := range st.TopStores {
			lines = append(lines, fmt.Sprintf("  • %s: %s (%dx)", s.Store, currency.FormatAmount(s.Total, base), s.Count))
		}
	}
	if m := st.MonthlyComparison; len(m) == 2 {
		diff := m[0].Total - m[1].Total
		pct := 0.0
		if m[1].Total != 0 {
			pct = diff / m[1].Total * 100
		}
		arrow := "↓"
		if diff > 0 {
			arrow = "↑"
		}
		lines = append(lines, fmt.Sprintf("\nMonth-over-month: %s %.0f%% (%s)",
			arrow, math.Abs(pct), currency.FormatAmount(math.Abs(diff), base)))
	}
	return h.reply(ctx, msg, strings.Join(lines, "\n"))
}

// cmdSearch takes a keyword and an optional YYYY-MM month. A malformed month
// searches all time.
func (h *Handler) cmdSearch(ctx context.Context, msg *models.Message, args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return h.reply(ctx, msg, "Usage: /search coffee\n/search coffee 2025-01")
	}
	query := fields[0]
	var p services.Period
	if len(fields) > 1 {
		if month, err := services.ParseMonth(fields[1]); err == nil {
			p = month
		}
	}

	chatID := msg.Chat.ID
	results, err := h.Summary.Search(ctx, chatID, query, p)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return h.reply(ctx, msg, fmt.Sprintf("No expenses matching '%s'.", query))
	}
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}

	lines := []string{fmt.Sprintf("🔍 Found %d expense(s) matching '%s':\n", len(results), query)}
	var total float64
	for i, e := range results {
		total += e.AmountBase
		if i >= searchShown {
			continue
		}
		desc := "—"
		switch {
		case e.Store != "" && e.Category != "":
			desc = e.Store + " — " + e.Category
		case e.Store != "":
			desc = e.Store
		case e.Category != "":
			desc = e.Category
		}
		line := fmt.Sprintf("• %s: %s (%s)", e.ExpenseDate, currency.FormatAmount(e.AmountBase, base), desc)
		if e.Note != "" {
			line += " — 📝 " + e.Note
		}
		lines = append(lines, line)
	}
	if len(results) > searchShown {
		lines = append(lines, fmt.Sprintf("\n... and %d more", len(results)-searchShown))
	}
	lines = append(lines, "\nTotal: "+currency.FormatAmount(total, base))
	return h.reply(ctx, msg, strings.Join(lines, "\n"))
}

func (h *Handler) cmdBudget(ctx context.Context, msg *models.Message, _ string) error {
	chatID := msg.Chat.ID
	budgets, err := h.Budgets.List(ctx, chatID)
	if err != nil {
		return err
	}
	if len(budgets) == 0 {
		return h.reply(ctx, msg, "No budgets set. Use /setbudget to create one.")
	}
	today := h.today()
	p := services.ParsePeriod("", today)
	statuses, err := h.Budgets.VsActual(ctx, chatID, p.From, p.To)
	if err != nil {
		return err
	}
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}
	blocks := make([]string, 0, len(statuses))
	for _, st := range statuses {
		blocks = append(blocks, fmt.Sprintf("%s: %s / %s\n  %s %.0f%%  (%s left)",
			budgetLabel(st.Category),
			currency.FormatAmount(st.Spent, base), currency.FormatAmount(st.Budget, base),
			services.ProgressBar(st.Pct), st.Pct, currency.FormatAmount(st.Remaining, base)))
	}
	return h.reply(ctx, msg, "💰 Budget — "+today.Format("January 2006")+"\n\n"+strings.Join(blocks, "\n\n"))
}

// cmdSetBudget accepts "/setbudget 2000" for the overall budget and
// "/setbudget groceries 500" for a category.
func (h *Handler) cmdSetBudget(ctx context.Context, msg *models.Message, args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return h.reply(ctx, msg, "Usage:\n/setbudget 2000 — set monthly total budget\n/setbudget groceries 500 — set category budget")
	}
	var (
		category *string
		amount   float64
	)
	if len(fields) == 1 {
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return h.reply(ctx, msg, "Invalid amount. Usage: /setbudget 2000")
		}
		amount = v
	} else {
		v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			return h.reply(ctx, msg, "Invalid amount. Usage: /setbudget groceries 500")
		}
		amount = v
		category = core.Ptr(strings.Join(fields[:len(fields)-1], " "))
	}
	if amount <= 0 {
		return h.reply(ctx, msg, "Budget must be positive.")
	}

	chatID := msg.Chat.ID
	b, err := h.Budgets.Set(ctx, chatID, category, amount)
	if err != nil {
		return err
	}
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}
	return h.reply(ctx, msg, fmt.Sprintf("Budget set: %s → %s/month", budgetLabel(b.Category), currency.FormatAmount(b.AmountBase, base)))
}

func (h *Handler) cmdRemoveBudget(ctx context.Context, msg *models.Message, args string) error {
	var category *string
	if args != "" {
		category = core.Ptr(strings.ToLower(args))
	}
	removed, err := h.Budgets.Remove(ctx, msg.Chat.ID, category)
	if err != nil {
		return err
	}
	if !removed {
		return h.reply(ctx, msg, "No matching budget found.")
	}
	label := "total"
	if category != nil {
		label = *category
	}
	return h.reply(ctx, msg, "Removed "+label+" budget.")
}

// cmdExport sends a month of expenses as CSV, the current month by default.
func (h *Handler) cmdExport(ctx context.Context, msg *models.Message, args string) error {
	var p services.Period
	if args != "" {
		month, err := services.ParseMonth(args)
		if err != nil {
			return h.reply(ctx, msg, "Invalid month format. Use: /export 2025-01")
		}
		p = month
	} else {
		first, last := h.today().MonthBounds()
		p = services.Period{From: first, To: last}
	}
	label := p.From.Format("January 2006")

	chatID := msg.Chat.ID
	expenses, err := h.Summary.Between(ctx, chatID, p)
	if err != nil {
		return err
	}
	if len(expenses) == 0 {
		return h.reply(ctx, msg, "No expenses for "+label+".")
	}
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}
	data, err := export.CSV(expenses, base)
	if err != nil {
		return err
	}
	caption := fmt.Sprintf("Expenses for %s (%d records)", label, len(expenses))
	return h.sender.SendDocument(ctx, chatID, export.Filename(p.From), bytes.NewReader(data), caption)
}

func (h *Handler) cmdBackup(ctx context.Context, msg *models.Message, _ string) error {
	if h.Backup == nil {
		return h.reply(ctx, msg, "No database file found.")
	}
	path, size, err := export.Snapshot(ctx, h.Backup, h.today())
	if err != nil {
		return err
	}
	defer export.Cleanup(path)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	caption := fmt.Sprintf("Kazo database backup (%.1f MB)", float64(size)/(1024*1024))
	return h.sender.SendDocument(ctx, msg.Chat.ID, filepath.Base(path), f, caption)
}
