package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"
	"golang.org/x/sync/errgroup"

	"kazo/internal/core"
	"kazo/internal/currency"
	"kazo/internal/log"
	"kazo/internal/services"
)

const addSubUsage = "Usage: /addsub Netflix 15.99 EUR monthly"

func (h *Handler) cmdSubs(ctx context.Context, msg *models.Message, _ string) error {
	chatID := msg.Chat.ID
	if _, err := h.Subscriptions.RefreshRates(ctx, chatID); err != nil {
		h.log(ctx).WarnContext(ctx, "Subscription refresh failed", log.FieldChatID, chatID, log.FieldError, err)
	}
	subs, total, err := h.Subscriptions.List(ctx, chatID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return h.reply(ctx, msg, "No active subscriptions. Use /addsub to add one.")
	}
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(subs))
	for _, s := range subs {
		line := fmt.Sprintf("• %s: %s%s (%s", s.Name, currency.FormatAmount(s.AmountBase, base), originalNote(s.Amount, s.Currency, base), s.Frequency)
		if !s.NextCharge.IsZero() {
			line += ", next " + s.NextCharge.String()
		}
		lines = append(lines, line+")")
	}
	return h.reply(ctx, msg, "📋 Active subscriptions:\n"+strings.Join(lines, "\n")+
		"\n\nTotal: ~"+currency.FormatAmount(total, base)+"/month")
}

// splitSubArgs splits "<name...> <amount> [currency] [frequency]". The
// amount is the last number among the final three fields, so names may
// contain spaces or digits.
func splitSubArgs(fields []string) (name string, amount float64, rest []string, ok bool) {
	for i := len(fields) - 1; i >= 1 && i >= len(fields)-3; i-- {
		v, err := core.ParseAmount(fields[i])
		if err != nil {
			continue
		}
		return strings.Join(fields[:i], " "), v, fields[i+1:], true
	}
	return "", 0, nil, false
}

// cmdAddSub parses "<name> <amount> [currency] [frequency]". The currency
// defaults to the chat's base currency.
func (h *Handler) cmdAddSub(ctx context.Context, msg *models.Message, args string) error {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return h.reply(ctx, msg, addSubUsage)
	}
	name, amount, rest, ok := splitSubArgs(fields)
	if !ok {
		return h.reply(ctx, msg, "Invalid amount. "+addSubUsage)
	}
	chatID := msg.Chat.ID
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}
	code := base
	if len(rest) > 0 {
		code = rest[0]
	}
	freq := core.Monthly
	if len(rest) > 1 {
		freq = core.Frequency(strings.ToLower(rest[1]))
	}
	if !freq.Valid() {
		return h.reply(ctx, msg, "Invalid frequency. Choose from: daily, monthly, weekly, yearly")
	}

	sub, err := h.Subscriptions.Add(ctx, core.Subscription{
		ChatID:    chatID,
		Name:      name,
		Amount:    amount,
		Currency:  code,
		Frequency: freq,
		Category:  "subscriptions",
	})
	if err != nil {
		return err
	}
	return h.reply(ctx, msg, fmt.Sprintf("Added subscription: %s %s/%s", sub.Name, currency.FormatAmount(sub.AmountBase, base), sub.Frequency))
}

func (h *Handler) cmdRemoveSub(ctx context.Context, msg *models.Message, args string) error {
	if args == "" {
		return h.reply(ctx, msg, "Usage: /removesub Netflix")
	}
	removed, err := h.Subscriptions.Remove(ctx, msg.Chat.ID, args)
	if err != nil {
		return err
	}
	if !removed {
		return h.reply(ctx, msg, fmt.Sprintf("Subscription '%s' not found.", args))
	}
	return h.reply(ctx, msg, "Removed subscription: "+args)
}

func (h *Handler) cmdCategories(ctx context.Context, msg *models.Message, _ string) error {
	custom, err := h.Categories.Custom(ctx, msg.Chat.ID)
	if err != nil {
		return err
	}
	customText := "none"
	if len(custom) > 0 {
		customText = strings.Join(custom, ", ")
	}
	return h.reply(ctx, msg, "Default: "+strings.Join(services.DefaultCategories, ", ")+"\n\nCustom: "+customText)
}

func (h *Handler) cmdAddCategory(ctx context.Context, msg *models.Message, args string) error {
	if args == "" {
		return h.reply(ctx, msg, "Usage: /addcategory <name>")
	}
	name := strings.ToLower(args)
	added, err := h.Categories.Add(ctx, msg.Chat.ID, name)
	if err != nil {
		return err
	}
	if !added {
		return h.reply(ctx, msg, fmt.Sprintf("Category '%s' already exists.", name))
	}
	return h.reply(ctx, msg, fmt.Sprintf("Category '%s' added.", name))
}

func (h *Handler) cmdRemoveCategory(ctx context.Context, msg *models.Message, args string) error {
	if args == "" {
		return h.reply(ctx, msg, "Usage: /removecategory <name>")
	}
	name := strings.ToLower(args)
	removed, err := h.Categories.Remove(ctx, msg.Chat.ID, name)
	if err != nil {
		return err
	}
	if !removed {
		return h.reply(ctx, msg, fmt.Sprintf("Can't remove '%s'. It's either a default category or doesn't exist.", name))
	}
	return h.reply(ctx, msg, fmt.Sprintf("Category '%s' removed.", name))
}

func (h *Handler) cmdSetCurrency(ctx context.Context, msg *models.Message, args string) error {
	chatID := msg.Chat.ID
	if args == "" {
		base, err := h.Rates.BaseCurrency(ctx, chatID)
		if err != nil {
			return err
		}
		return h.reply(ctx, msg, fmt.Sprintf("Current base currency: %s\n\nUsage: /setcurrency USD\nSupported: %s",
			base, strings.Join(currency.Supported(), ", ")))
	}
	code, err := h.Rates.SetBaseCurrency(ctx, chatID, args)
	if err != nil {
		return err
	}
	return h.reply(ctx, msg, fmt.Sprintf("Base currency set to %s. All amounts will now display in %s.", code, code))
}

// cmdRate shows one rate against the base currency, or without an argument
// the rates of the currencies the chat used recently.
func (h *Handler) cmdRate(ctx context.Context, msg *models.Message, args string) error {
	chatID := msg.Chat.ID
	base, err := h.Rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return err
	}
	if args == "" {
		return h.recentRates(ctx, msg, base)
	}

	code, err := currency.Validate(args)
	if err != nil {
		return err
	}
	if code == base {
		return h.reply(ctx, msg, fmt.Sprintf("1 %s = 1 %s", base, base))
	}
	rate, err := h.Rates.GetRate(ctx, code, base)
	if err != nil {
		h.log(ctx).WarnContext(ctx, "Rate lookup failed",
			log.FieldChatID, chatID,
			log.FieldPair, code+"/"+base,
			log.FieldError, err)
		return h.reply(ctx, msg, fmt.Sprintf("Could not fetch rate for %s. Try again later.", code))
	}
	inverse := 0.0
	if rate != 0 {
		inverse = 1 / rate
	}
	return h.reply(ctx, msg, fmt.Sprintf("1 %s = %.4f %s\n1 %s = %.4f %s", code, rate, base, base, inverse, code))
}

func (h *Handler) recentRates(ctx context.Context, msg *models.Message, base string) error {
	recent, err := h.Rates.RecentCurrencies(ctx, msg.Chat.ID)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		return h.reply(ctx, msg, "Usage: /rate USD\n\nSupported: "+strings.Join(currency.Supported(), ", "))
	}

	lines := make([]string, len(recent))
	g, gctx := errgroup.WithContext(ctx)
	for i, code := range recent {
		g.Go(func() error {
			rate, err := h.Rates.GetRate(gctx, code, base)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				h.log(ctx).WarnContext(ctx, "Rate lookup failed",
					log.FieldChatID, msg.Chat.ID,
					log.FieldPair, code+"/"+base,
					log.FieldError, err)
				lines[i] = fmt.Sprintf("1 %s = unavailable", code)
				return nil
			}
			lines[i] = fmt.Sprintf("1 %s = %.4f %s", code, rate, base)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return h.reply(ctx, msg, "Recently used currencies:\n"+strings.Join(lines, "\n"))
}

func (h *Handler) cmdSettings(ctx context.Context, msg *models.Message, _ string) error {
	base, err := h.Rates.BaseCurrency(ctx, msg.Chat.ID)
	if err != nil {
		return err
	}
	return h.reply(ctx, msg, fmt.Sprintf("⚙️ Settings\n\nBase currency: %s\nBackend: %s\nModel: %s\nConfirmation timeout: %s\n\nUse /setcurrency to change base currency.",
		base, orDefault(h.Settings.Backend, "unknown"), orDefault(h.Settings.Model, "default"), h.Registry.TTL()))
}
