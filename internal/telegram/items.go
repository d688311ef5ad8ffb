package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-telegram/bot/models"

	"kazo/internal/core"
)

const (
	priceHistoryShown = 10
	recentItemsLimit  = 30
)

// cmdPrice shows the price history of an item. When nothing matches the
// whole argument, the last word is tried as a store filter.
func (h *Handler) cmdPrice(ctx context.Context, msg *models.Message, args string) error {
	if args == "" {
		return h.reply(ctx, msg, "Usage: /price <item name> [store]\nExample: /price tomatoes lidl")
	}
	chatID := msg.Chat.ID
	name := args
	results, err := h.Summary.ItemPrices(ctx, chatID, name)
	if err != nil {
		return err
	}
	if i := strings.LastIndexByte(args, ' '); len(results) == 0 && i > 0 {
		name = strings.TrimSpace(args[:i])
		store := strings.ToLower(strings.TrimSpace(args[i+1:]))
		results, err = h.Summary.ItemPrices(ctx, chatID, name)
		if err != nil {
			return err
		}
		results = filterStore(results, store)
	}
	if len(results) == 0 {
		return h.reply(ctx, msg, fmt.Sprintf("No price history found for %q.", args))
	}

	lo, hi, sum := results[0].Price, results[0].Price, 0.0
	for _, r := range results {
		lo = min(lo, r.Price)
		hi = max(hi, r.Price)
		sum += r.Price
	}
	avg := sum / float64(len(results))
	cur := results[0].Currency

	lines := []string{
		fmt.Sprintf("📊 Price history for %q (%d records)", name, len(results)),
		fmt.Sprintf("Min: %.2f %s | Avg: %.2f %s | Max: %.2f %s", lo, cur, avg, cur, hi, cur),
		"",
	}
	for i, r := range results {
		if i == priceHistoryShown {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(results)-priceHistoryShown))
			break
		}
		line := fmt.Sprintf("  %s — %.2f %s", r.ExpenseDate, r.Price, r.Currency)
		if r.Quantity != 1 && r.Quantity > 0 {
			line += fmt.Sprintf(" x%.0f", r.Quantity)
		}
		lines = append(lines, line+" @ "+orDefault(r.Store, "?"))
	}
	return h.reply(ctx, msg, strings.Join(lines, "\n"))
}

func filterStore(rows []core.ItemPrice, store string) []core.ItemPrice {
	out := rows[:0]
	for _, r := range rows {
		if r.Store != "" && strings.Contains(strings.ToLower(r.Store), store) {
			out = append(out, r)
		}
	}
	return out
}

// cmdItems lists recently bought items, optionally for one category.
func (h *Handler) cmdItems(ctx context.Context, msg *models.Message, args string) error {
	rows, err := h.Summary.RecentItems(ctx, msg.Chat.ID, args, recentItemsLimit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		text := "No items found."
		if args != "" {
			text += " (category: " + args + ")"
		}
		return h.reply(ctx, msg, text)
	}
	header := "📋 Recent items"
	if args != "" {
		header += " (" + args + ")"
	}
	lines := []string{header + ":"}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("  %s — %.2f %s @ %s (%s)", r.Name, r.Price, r.Currency, orDefault(r.Store, "?"), r.ExpenseDate))
	}
	return h.reply(ctx, msg, strings.Join(lines, "\n"))
}

// cmdCompare ranks stores by the average price paid for an item.
func (h *Handler) cmdCompare(ctx context.Context, msg *models.Message, args string) error {
	if args == "" {
		return h.reply(ctx, msg, "Usage: /compare <item name>\nExample: /compare tomatoes")
	}
	results, err := h.Summary.ItemPrices(ctx, msg.Chat.ID, args)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return h.reply(ctx, msg, fmt.Sprintf("No records found for %q.", args))
	}

	type storeAvg struct {
		name  string
		sum   float64
		count int
	}
	byStore := map[string]*storeAvg{}
	var order []*storeAvg
	for _, r := range results {
		name := orDefault(r.Store, "Unknown")
		s, ok := byStore[name]
		if !ok {
			s = &storeAvg{name: name}
			byStore[name] = s
			order = append(order, s)
		}
		s.sum += r.Price
		s.count++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].sum/float64(order[i].count) < order[j].sum/float64(order[j].count)
	})

	cur := results[0].Currency
	lines := []string{fmt.Sprintf("🏪 Price comparison for %q:", args)}
	for _, s := range order {
		lines = append(lines, fmt.Sprintf("  %s: avg %.2f %s (%d purchases)", s.name, s.sum/float64(s.count), cur, s.count))
	}
	return h.reply(ctx, msg, strings.Join(lines, "\n"))
}
