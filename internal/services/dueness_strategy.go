// Package services holds the business operations behind bot commands.
//
// This file implements the billing schedule strategies: each subscription
// frequency knows how to find its next charge date and how to express its
// amount per month.
package services

import (
	"fmt"
	"time"

	"kazo/internal/core"
)

// BillingSchedule is the strategy interface for one subscription frequency.
type BillingSchedule interface {
	// NextCharge returns the first charge date on or after today. anchor is
	// when the subscription started; billingDay overrides the anchor's day
	// of month for monthly and yearly plans.
	NextCharge(today, anchor core.Date, billingDay *int) core.Date
	// MonthlyFactor converts one charge into a per-month amount.
	MonthlyFactor() float64
}

type DailySchedule struct{}

func (DailySchedule) NextCharge(today, _ core.Date, _ *int) core.Date { return today }
func (DailySchedule) MonthlyFactor() float64                          { return 30.44 }

// WeeklySchedule charges on the anchor's weekday.
type WeeklySchedule struct{}

func (WeeklySchedule) NextCharge(today, anchor core.Date, _ *int) core.Date {
	diff := (int(anchor.Weekday()) - int(today.Weekday()) + 7) % 7
	return today.AddDays(diff)
}

func (WeeklySchedule) MonthlyFactor() float64 { return 4.33 }

// MonthlySchedule charges on the billing day, clamped to short months.
type MonthlySchedule struct{}

func (MonthlySchedule) NextCharge(today, anchor core.Date, billingDay *int) core.Date {
	day := anchor.Day()
	if billingDay != nil {
		day = *billingDay
	}
	this := clampedDate(today.Year(), today.Month(), day)
	if !this.Before(today.Time) {
		return this
	}
	next := time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return clampedDate(next.Year(), next.Month(), day)
}

func (MonthlySchedule) MonthlyFactor() float64 { return 1 }

// YearlySchedule charges once a year in the anchor's month.
type YearlySchedule struct{}

func (YearlySchedule) NextCharge(today, anchor core.Date, billingDay *int) core.Date {
	day := anchor.Day()
	if billingDay != nil {
		day = *billingDay
	}
	this := clampedDate(today.Year(), anchor.Month(), day)
	if !this.Before(today.Time) {
		return this
	}
	return clampedDate(today.Year()+1, anchor.Month(), day)
}

func (YearlySchedule) MonthlyFactor() float64 { return 1.0 / 12 }

func clampedDate(year int, month time.Month, day int) core.Date {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return core.NewDate(year, int(month), day)
}

var billingSchedules = map[core.Frequency]BillingSchedule{
	core.Daily:   DailySchedule{},
	core.Weekly:  WeeklySchedule{},
	core.Monthly: MonthlySchedule{},
	core.Yearly:  YearlySchedule{},
}

// GetBillingSchedule returns the schedule for a frequency.
func GetBillingSchedule(f core.Frequency) (BillingSchedule, error) {
	s, ok := billingSchedules[f]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", f)
	}
	return s, nil
}

// MonthlyEquivalent expresses a per-charge amount as a monthly amount.
func MonthlyEquivalent(amount float64, f core.Frequency) float64 {
	s, err := GetBillingSchedule(f)
	if err != nil {
		return amount
	}
	return amount * s.MonthlyFactor()
}
