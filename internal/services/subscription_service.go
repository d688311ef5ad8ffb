package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"kazo/internal/core"
	"kazo/internal/currency"
	"kazo/internal/log"
	"kazo/internal/storage"
)

const refreshConcurrency = 4

// SubscriptionView is a subscription with its derived schedule figures.
type SubscriptionView struct {
	core.Subscription
	Monthly    float64
	NextCharge core.Date
}

type SubscriptionService struct {
	storage *storage.SQLiteRepository
	rates   *currency.Service
	logger  *log.Logger
	now     func() time.Time
}

func NewSubscriptionService(storage *storage.SQLiteRepository, rates *currency.Service, logger *log.Logger) *SubscriptionService {
	if logger == nil {
		logger = log.Discard()
	}
	return &SubscriptionService{
		storage: storage,
		rates:   rates,
		logger:  logger.WithComponent(log.ComponentExpense),
		now:     time.Now,
	}
}

// Add converts the amount to the chat's base currency and stores the
// subscription.
func (s *SubscriptionService) Add(ctx context.Context, sub core.Subscription) (core.Subscription, error) {
	code, err := currency.Validate(sub.Currency)
	if err != nil {
		return core.Subscription{}, err
	}
	sub.Currency = code
	sub.Name = strings.TrimSpace(sub.Name)
	sub.Category = strings.ToLower(strings.TrimSpace(sub.Category))
	if sub.Frequency == "" {
		sub.Frequency = core.Monthly
	}
	if !sub.Frequency.Valid() {
		return core.Subscription{}, &core.ValidationError{Field: "frequency", Msg: "use daily, weekly, monthly or yearly"}
	}

	base, _, err := s.rates.ConvertToBase(ctx, sub.Amount, sub.Currency, sub.ChatID)
	if err != nil {
		return core.Subscription{}, err
	}
	sub.AmountBase = base
	sub.Active = true

	id, err := s.storage.AddSubscription(ctx, sub)
	if err != nil {
		return core.Subscription{}, err
	}
	sub.ID = id
	return sub, nil
}

// List returns active subscriptions with monthly equivalents and next charge
// dates, sorted by name.
func (s *SubscriptionService) List(ctx context.Context, chatID int64) ([]SubscriptionView, float64, error) {
	subs, err := s.storage.ActiveSubscriptions(ctx, chatID)
	if err != nil {
		return nil, 0, err
	}
	today := core.Today(s.now())
	out := make([]SubscriptionView, 0, len(subs))
	var total float64
	for _, sub := range subs {
		v := SubscriptionView{Subscription: sub}
		v.Monthly = MonthlyEquivalent(sub.AmountBase, sub.Frequency)
		if sched, err := GetBillingSchedule(sub.Frequency); err == nil {
			v.NextCharge = sched.NextCharge(today, core.Today(sub.CreatedAt), sub.BillingDay)
		}
		total += v.Monthly
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, total, nil
}

// Remove deactivates a subscription by name, case-insensitively.
func (s *SubscriptionService) Remove(ctx context.Context, chatID int64, name string) (bool, error) {
	return s.storage.DeactivateSubscription(ctx, chatID, strings.TrimSpace(name))
}

// RefreshRates converts non-base subscriptions again at current rates. Each
// subscription is refreshed independently; failures are logged and skipped.
func (s *SubscriptionService) RefreshRates(ctx context.Context, chatID int64) (int, error) {
	base, err := s.rates.BaseCurrency(ctx, chatID)
	if err != nil {
		return 0, err
	}
	subs, err := s.storage.ActiveSubscriptions(ctx, chatID)
	if err != nil {
		return 0, err
	}

	updated := make([]bool, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for i, sub := range subs {
		if sub.Currency == base {
			continue
		}
		g.Go(func() error {
			amount, _, err := s.rates.ConvertToBase(gctx, sub.Amount, sub.Currency, chatID)
			if err != nil {
				s.logger.WarnContext(gctx, "Failed to refresh subscription rate",
					"subscription", sub.Name,
					log.FieldError, err)
				return nil
			}
			if amount == sub.AmountBase {
				return nil
			}
			if err := s.storage.UpdateSubscriptionBase(gctx, sub.ID, amount); err != nil {
				return fmt.Errorf("update %s: %w", sub.Name, err)
			}
			s.logger.DebugContext(gctx, "Subscription rate refreshed",
				"subscription", sub.Name,
				"from", sub.AmountBase,
				"to", amount,
				log.FieldCurrency, base)
			updated[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	n := 0
	for _, u := range updated {
		if u {
			n++
		}
	}
	return n, nil
}
