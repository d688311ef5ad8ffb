package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

const (
	SourceText         Source = "text"
	SourceReceipt      Source = "receipt"
	SourceProductPhoto Source = "product_photo"
)

const dateLayout = "2006-01-02"

type (
	Frequency string
	Source    string

	Date struct {
		time.Time
	}

	Expense struct {
		ID           int64
		ChatID       int64
		UserID       int64
		Store        string
		Amount       float64 // original currency
		Currency     string
		AmountBase   float64 // chat base currency
		ExchangeRate float64
		Category     string
		Note         string
		ItemsJSON    string // raw extracted items, unpriced entries included
		Source       Source
		ExpenseDate  Date
		CreatedAt    time.Time
	}

	ExpenseItem struct {
		ID        int64
		ExpenseID int64
		Name      string
		Price     *float64
		Currency  string
		Quantity  float64
	}

	Budget struct {
		ID         int64
		ChatID     int64
		Category   *string // nil means the overall budget
		AmountBase float64
	}

	Subscription struct {
		ID         int64
		ChatID     int64
		Name       string
		Amount     float64
		Currency   string
		AmountBase float64
		Frequency  Frequency
		Category   string
		BillingDay *int
		Active     bool
		CreatedAt  time.Time
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidRate       = errors.New("invalid exchange rate")
	ErrInvalidFrequency  = errors.New("invalid frequency")
	ErrInvalidBillingDay = errors.New("billing day must be between 1 and 31")
	ErrEmptyName         = errors.New("empty name")
	ErrEmptyCurrency     = errors.New("empty currency")
)

// ValidationError reports a user-correctable input problem.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current date truncated to midnight UTC.
func Today(now time.Time) Date {
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate parses an ISO date (YYYY-MM-DD). Timestamps with a time part are
// accepted and truncated.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) >= len(dateLayout) {
		if t, err := time.Parse(dateLayout, s[:len(dateLayout)]); err == nil {
			return Date{Time: t}, nil
		}
	}
	return Date{}, &ValidationError{Field: "date", Msg: fmt.Sprintf("%q is not YYYY-MM-DD", s)}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// AddDays returns the date shifted by n days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// MonthBounds returns the first and last day of the month containing d.
func (d Date) MonthBounds() (Date, Date) {
	first := NewDate(d.Year(), int(d.Month()), 1)
	last := Date{Time: first.AddDate(0, 1, -1)}
	return first, last
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func (e Expense) Validate() error {
	if e.Amount <= 0 {
		return ErrInvalidAmount
	}
	if e.AmountBase <= 0 {
		return fmt.Errorf("base amount: %w", ErrInvalidAmount)
	}
	if e.ExchangeRate <= 0 {
		return ErrInvalidRate
	}
	if strings.TrimSpace(e.Currency) == "" {
		return ErrEmptyCurrency
	}
	return e.ExpenseDate.Validate()
}

func (s Subscription) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if s.Amount <= 0 || s.AmountBase <= 0 {
		return ErrInvalidAmount
	}
	if !s.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if s.BillingDay != nil && (*s.BillingDay < 1 || *s.BillingDay > 31) {
		return ErrInvalidBillingDay
	}
	return nil
}

func (b Budget) Validate() error {
	if b.AmountBase <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
