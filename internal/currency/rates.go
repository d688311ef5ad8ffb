package currency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"kazo/internal/cache"
	"kazo/internal/core"
	"kazo/internal/log"
)

// ErrRateUnavailable means the provider failed and no cached rate exists for
// the pair. Callers should treat it as temporary.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Rate lookup outcomes reported to Metrics.
const (
	OutcomeIdentity    = "identity"
	OutcomeFresh       = "fresh"
	OutcomeFetched     = "fetched"
	OutcomeStale       = "stale"
	OutcomeUnavailable = "unavailable"
)

// CachedRate is a persisted rate for an ordered currency pair.
type CachedRate struct {
	Rate      float64
	FetchedAt time.Time
}

// RateStore persists rates keyed by "FROM:TO".
type RateStore interface {
	CachedRate(ctx context.Context, pair string) (CachedRate, bool, error)
	StoreRate(ctx context.Context, pair string, rate CachedRate) error
}

// SettingsStore holds per-chat currency settings.
type SettingsStore interface {
	BaseCurrency(ctx context.Context, chatID int64) (string, bool, error)
	SetBaseCurrency(ctx context.Context, chatID int64, code string) error
	RecentCurrencies(ctx context.Context, chatID int64, exclude string, limit int) ([]string, error)
}

type Metrics interface {
	ObserveRateLookup(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRateLookup(string) {}

type Options struct {
	// MaxAge is how long a cached rate counts as fresh.
	MaxAge      time.Duration
	DefaultBase string
	Logger      *log.Logger
	Metrics     Metrics
	Now         func() time.Time
}

// Service resolves exchange rates through a persistent cache backed by a
// live provider, falling back to stale entries when the provider fails.
type Service struct {
	store       RateStore
	settings    SettingsStore
	provider    Provider
	maxAge      time.Duration
	defaultBase string
	logger      *log.Logger
	metrics     Metrics
	now         func() time.Time

	fetches singleflight.Group
	bases   *cache.LRUCache[string]
}

func NewService(store RateStore, settings SettingsStore, provider Provider, opts Options) *Service {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	if opts.DefaultBase == "" {
		opts.DefaultBase = "EUR"
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:       store,
		settings:    settings,
		provider:    provider,
		maxAge:      opts.MaxAge,
		defaultBase: opts.DefaultBase,
		logger:      opts.Logger.WithComponent(log.ComponentCurrency),
		metrics:     opts.Metrics,
		now:         opts.Now,
		bases:       cache.NewLRUCache[string](1024, 10*time.Minute),
	}
}

// BaseCache exposes the per-chat base currency cache so it can be swept.
func (s *Service) BaseCache() cache.Cleaner {
	return s.bases
}

func pairKey(from, to string) string {
	return from + ":" + to
}

// GetRate returns the rate converting one unit of from into to. Identical
// codes short-circuit to exactly 1 without consulting the cache.
func (s *Service) GetRate(ctx context.Context, from, to string) (float64, error) {
	from, err := Validate(from)
	if err != nil {
		return 0, err
	}
	to, err = Validate(to)
	if err != nil {
		return 0, err
	}
	if from == to {
		s.metrics.ObserveRateLookup(OutcomeIdentity)
		return 1.0, nil
	}

	pair := pairKey(from, to)
	cached, found, err := s.store.CachedRate(ctx, pair)
	if err != nil {
		s.logger.WarnContext(ctx, "Rate cache read failed", log.FieldPair, pair, log.FieldError, err)
		found = false
	}
	if found && s.now().Sub(cached.FetchedAt) <= s.maxAge {
		s.metrics.ObserveRateLookup(OutcomeFresh)
		return cached.Rate, nil
	}

	v, err, _ := s.fetches.Do(pair, func() (any, error) {
		return s.fetch(ctx, from, to)
	})
	if err == nil {
		s.metrics.ObserveRateLookup(OutcomeFetched)
		return v.(float64), nil
	}

	if found {
		s.logger.WarnContext(ctx, "Rate provider failed, using stale cache",
			log.FieldPair, pair,
			"age", s.now().Sub(cached.FetchedAt).String(),
			log.FieldError, err)
		s.metrics.ObserveRateLookup(OutcomeStale)
		return cached.Rate, nil
	}

	s.logger.ErrorContext(ctx, "Rate provider failed with no cached rate", log.FieldPair, pair, log.FieldError, err)
	s.metrics.ObserveRateLookup(OutcomeUnavailable)
	return 0, fmt.Errorf("%w: %s: %v", ErrRateUnavailable, pair, err)
}

func (s *Service) fetch(ctx context.Context, from, to string) (float64, error) {
	start := s.now()
	rate, err := s.provider.FetchRate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if rate <= 0 {
		return 0, fmt.Errorf("provider returned non-positive rate %v", rate)
	}
	pair := pairKey(from, to)
	if err := s.store.StoreRate(ctx, pair, CachedRate{Rate: rate, FetchedAt: s.now()}); err != nil {
		// The fetched rate is still good for this call.
		s.logger.WarnContext(ctx, "Rate cache write failed", log.FieldPair, pair, log.FieldError, err)
	}
	s.logger.InfoContext(ctx, "Fetched live rate",
		log.FieldPair, pair,
		"rate", rate,
		log.FieldDuration, s.now().Sub(start).Milliseconds())
	return rate, nil
}

// BaseCurrency returns the chat's base currency, or the configured default.
func (s *Service) BaseCurrency(ctx context.Context, chatID int64) (string, error) {
	key := strconv.FormatInt(chatID, 10)
	if code, ok := s.bases.Get(key); ok {
		return code, nil
	}
	code, found, err := s.settings.BaseCurrency(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("load base currency: %w", err)
	}
	if !found {
		code = s.defaultBase
	}
	s.bases.Set(key, code)
	return code, nil
}

// SetBaseCurrency validates and stores a chat's base currency.
func (s *Service) SetBaseCurrency(ctx context.Context, chatID int64, code string) (string, error) {
	code, err := Validate(code)
	if err != nil {
		return "", err
	}
	if err := s.settings.SetBaseCurrency(ctx, chatID, code); err != nil {
		return "", fmt.Errorf("save base currency: %w", err)
	}
	s.bases.Set(strconv.FormatInt(chatID, 10), code)
	return code, nil
}

// ConvertToBase converts amount in currency to the chat's base currency and
// returns the rounded amount together with the rate used.
func (s *Service) ConvertToBase(ctx context.Context, amount float64, currency string, chatID int64) (float64, float64, error) {
	base, err := s.BaseCurrency(ctx, chatID)
	if err != nil {
		return 0, 0, err
	}
	rate, err := s.GetRate(ctx, currency, base)
	if err != nil {
		return 0, 0, err
	}
	return core.MulRound(amount, rate), rate, nil
}

// RecentCurrencies lists non-base currencies the chat used most recently.
func (s *Service) RecentCurrencies(ctx context.Context, chatID int64) ([]string, error) {
	base, err := s.BaseCurrency(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.settings.RecentCurrencies(ctx, chatID, base, 5)
}
