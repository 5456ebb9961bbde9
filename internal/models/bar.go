// Package models provides the core data structures for OHLCV market data:
// price bars, ordered price series, and fetch windows used as cache keys.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar represents OHLCV price and volume data for one sampling interval.
type PriceBar struct {
	Timestamp time.Time       `json:"timestamp" db:"ts"`
	Open      decimal.Decimal `json:"open" db:"open"`
	High      decimal.Decimal `json:"high" db:"high"`
	Low       decimal.Decimal `json:"low" db:"low"`
	Close     decimal.Decimal `json:"close" db:"close"`
	Volume    decimal.Decimal `json:"volume" db:"volume"`
}

// ValidationError represents a bar validation error with field context.
type ValidationError struct {
	Field   string // Field is the name of the field that failed validation
	Message string // Message is a descriptive error message
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// Validate checks the OHLC relationships of the bar.
// All prices must be positive, volume non-negative,
// high >= max(open, close) and low <= min(open, close).
func (b *PriceBar) Validate() error {
	if b.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "timestamp cannot be zero"}
	}

	zero := decimal.Zero
	if b.Open.LessThanOrEqual(zero) {
		return &ValidationError{Field: "open", Message: "open price must be greater than 0"}
	}
	if b.High.LessThanOrEqual(zero) {
		return &ValidationError{Field: "high", Message: "high price must be greater than 0"}
	}
	if b.Low.LessThanOrEqual(zero) {
		return &ValidationError{Field: "low", Message: "low price must be greater than 0"}
	}
	if b.Close.LessThanOrEqual(zero) {
		return &ValidationError{Field: "close", Message: "close price must be greater than 0"}
	}
	if b.Volume.LessThan(zero) {
		return &ValidationError{Field: "volume", Message: "volume must be greater than or equal to 0"}
	}

	maxOpenClose := decimal.Max(b.Open, b.Close)
	if b.High.LessThan(maxOpenClose) {
		return &ValidationError{
			Field:   "high",
			Message: fmt.Sprintf("high price (%s) must be greater than or equal to max(open, close) (%s)", b.High, maxOpenClose),
		}
	}

	minOpenClose := decimal.Min(b.Open, b.Close)
	if b.Low.GreaterThan(minOpenClose) {
		return &ValidationError{
			Field:   "low",
			Message: fmt.Sprintf("low price (%s) must be less than or equal to min(open, close) (%s)", b.Low, minOpenClose),
		}
	}

	return nil
}

// Range returns the total price movement of the bar: High - Low.
func (b *PriceBar) Range() decimal.Decimal {
	return b.High.Sub(b.Low)
}

// BodySize returns the absolute difference between open and close.
func (b *PriceBar) BodySize() decimal.Decimal {
	return b.Close.Sub(b.Open).Abs()
}

// IsBullish reports whether the bar closed above its open.
func (b *PriceBar) IsBullish() bool {
	return b.Close.GreaterThan(b.Open)
}

// String returns a human-readable representation of the bar.
func (b *PriceBar) String() string {
	return fmt.Sprintf("PriceBar{Timestamp: %s, O: %s, H: %s, L: %s, C: %s, V: %s}",
		b.Timestamp.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume)
}

// NewPriceBar creates a validated PriceBar from decimal strings.
// The timestamp should mark the start of the bar period.
func NewPriceBar(timestamp time.Time, open, high, low, close, volume string) (*PriceBar, error) {
	o, err := decimal.NewFromString(open)
	if err != nil {
		return nil, &ValidationError{Field: "open", Message: fmt.Sprintf("invalid open price format: %v", err)}
	}
	h, err := decimal.NewFromString(high)
	if err != nil {
		return nil, &ValidationError{Field: "high", Message: fmt.Sprintf("invalid high price format: %v", err)}
	}
	l, err := decimal.NewFromString(low)
	if err != nil {
		return nil, &ValidationError{Field: "low", Message: fmt.Sprintf("invalid low price format: %v", err)}
	}
	c, err := decimal.NewFromString(close)
	if err != nil {
		return nil, &ValidationError{Field: "close", Message: fmt.Sprintf("invalid close price format: %v", err)}
	}
	v, err := decimal.NewFromString(volume)
	if err != nil {
		return nil, &ValidationError{Field: "volume", Message: fmt.Sprintf("invalid volume format: %v", err)}
	}

	bar := &PriceBar{
		Timestamp: timestamp,
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    v,
	}
	if err := bar.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create price bar: %w", err)
	}
	return bar, nil
}
