package models

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	moneyFractionDigits = 8
	moneyScale          = int64(100000000)
)

// Money represents a currency amount stored in minor units (1e-8 of the major
// currency) to avoid floating point rounding issues. JSON encoding and string
// formatting expose the canonical decimal representation while all internal
// operations use the fixed-precision integer value.
type Money struct {
	minorUnits int64
}

// NewMoneyFromMinorUnits constructs a Money value from its minor-unit
// representation.
func NewMoneyFromMinorUnits(units int64) Money {
	return Money{minorUnits: units}
}

// MinorUnits exposes the internal integer representation scaled by 1e-8.
func (m Money) MinorUnits() int64 {
	return m.minorUnits
}

// Add returns the sum of two Money values.
func (m Money) Add(other Money) Money {
	return Money{minorUnits: m.minorUnits + other.minorUnits}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.minorUnits == 0
}

// Float64 returns the amount as a floating point major-unit value. Intended
// for display formatting only; arithmetic stays on MinorUnits.
func (m Money) Float64() float64 {
	return float64(m.minorUnits) / float64(moneyScale)
}

// DecimalString returns the canonical decimal representation with up to eight
// fractional digits.
func (m Money) DecimalString() string {
	return formatMinorUnits(m.minorUnits)
}

// String implements fmt.Stringer.
func (m Money) String() string {
	return m.DecimalString()
}

// MarshalJSON encodes the fixed-precision amount as a JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.DecimalString()), nil
}

// UnmarshalJSON decodes a JSON number or string into the fixed-precision minor
// unit representation. A JSON null resets the value to zero.
func (m *Money) UnmarshalJSON(data []byte) error {
	if m == nil {
		return fmt.Errorf("models: cannot decode into nil Money pointer")
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*m = Money{}
		return nil
	}
	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode money string: %w", err)
		}
	} else {
		raw = trimmed
	}
	money, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = money
	return nil
}

// ParseMoney parses a human-readable decimal string into a Money value with up
// to eight fractional digits.
func ParseMoney(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Money{}, fmt.Errorf("invalid money amount")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return Money{}, fmt.Errorf("invalid money amount")
	}
	rat.Mul(rat, big.NewRat(moneyScale, 1))
	if !rat.IsInt() {
		return Money{}, fmt.Errorf("amount supports up to %d decimal places", moneyFractionDigits)
	}
	numerator := rat.Num()
	if !numerator.IsInt64() {
		return Money{}, fmt.Errorf("money amount out of range")
	}
	return Money{minorUnits: numerator.Int64()}, nil
}

// MustParseMoney panics if the value cannot be parsed. It is intended for
// tests and static initialisation.
func MustParseMoney(value string) Money {
	money, err := ParseMoney(value)
	if err != nil {
		panic(err)
	}
	return money
}

func formatMinorUnits(units int64) string {
	negative := units < 0
	if negative {
		units = -units
	}
	major := units / moneyScale
	minor := units % moneyScale
	var builder strings.Builder
	if negative {
		builder.WriteByte('-')
	}
	builder.WriteString(fmt.Sprintf("%d", major))
	if minor == 0 {
		return builder.String()
	}
	builder.WriteByte('.')
	fraction := fmt.Sprintf("%0*d", moneyFractionDigits, minor)
	fraction = strings.TrimRight(fraction, "0")
	builder.WriteString(fraction)
	return builder.String()
}

// AlertType enumerates the closed set of alert kinds the overlay renders.
type AlertType string

const (
	AlertFollow     AlertType = "follow"
	AlertSub        AlertType = "sub"
	AlertCheer      AlertType = "cheer"
	AlertRaid       AlertType = "raid"
	AlertDonation   AlertType = "donation"
	AlertRedemption AlertType = "redemption"
	AlertFirstWord  AlertType = "firstword"
)

// AlertTypes lists every known alert type in a stable order. Used for the
// latest-event restore loop and validation.
func AlertTypes() []AlertType {
	return []AlertType{
		AlertFollow,
		AlertSub,
		AlertCheer,
		AlertRaid,
		AlertDonation,
		AlertRedemption,
		AlertFirstWord,
	}
}

// KnownAlertType reports whether the value is part of the closed vocabulary.
func KnownAlertType(t AlertType) bool {
	switch t {
	case AlertFollow, AlertSub, AlertCheer, AlertRaid, AlertDonation, AlertRedemption, AlertFirstWord:
		return true
	default:
		return false
	}
}

// Platform identifies where an event originated.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
	PlatformKick    Platform = "kick"
	// PlatformTest marks synthetic alerts produced through the QA endpoint.
	PlatformTest Platform = "test"
)

// Lifecycle tracks an alert's progress across the overlay. Transitions only
// move forward: pending -> active -> exiting -> dismissed. A force-removed
// alert may skip exiting but is never resurrected.
type Lifecycle string

const (
	LifecyclePending   Lifecycle = "pending"
	LifecycleActive    Lifecycle = "active"
	LifecycleExiting   Lifecycle = "exiting"
	LifecycleDismissed Lifecycle = "dismissed"
)

// Alert is one live streaming event heading for the capture surface. Optional
// fields depend on Type; unused fields stay at their zero value so the struct
// remains plain data and JSON round-trips losslessly.
type Alert struct {
	ID       string    `json:"id"`
	Type     AlertType `json:"type"`
	Platform Platform  `json:"platform"`
	User     string    `json:"user"`

	Amount        Money  `json:"amount"`
	AmountDisplay string `json:"amountDisplay,omitempty"`
	Currency      string `json:"currency,omitempty"`
	Tier          string `json:"tier,omitempty"`
	Months        int    `json:"months,omitempty"`
	IsGift        bool   `json:"isGift,omitempty"`
	GiftRecipient string `json:"giftRecipient,omitempty"`
	Viewers       int    `json:"viewers,omitempty"`
	Reward        string `json:"reward,omitempty"`
	Cost          int    `json:"cost,omitempty"`
	Message       string `json:"message,omitempty"`

	Timestamp          time.Time `json:"timestamp"`
	Lifecycle          Lifecycle `json:"lifecycle"`
	LifecycleChangedAt time.Time `json:"lifecycleChangedAt"`
}

// Summary renders a short human-readable description for the activity feed.
func (a Alert) Summary() string {
	switch a.Type {
	case AlertFollow:
		return fmt.Sprintf("%s followed", a.User)
	case AlertSub:
		if a.IsGift && a.GiftRecipient != "" {
			return fmt.Sprintf("%s gifted a sub to %s", a.User, a.GiftRecipient)
		}
		if a.Months > 1 {
			return fmt.Sprintf("%s resubscribed (%d months)", a.User, a.Months)
		}
		return fmt.Sprintf("%s subscribed", a.User)
	case AlertCheer:
		return fmt.Sprintf("%s cheered %s bits", a.User, a.Amount.DecimalString())
	case AlertRaid:
		return fmt.Sprintf("%s raided with %d viewers", a.User, a.Viewers)
	case AlertDonation:
		if a.AmountDisplay != "" {
			return fmt.Sprintf("%s donated %s", a.User, a.AmountDisplay)
		}
		return fmt.Sprintf("%s donated %s %s", a.User, a.Amount.DecimalString(), a.Currency)
	case AlertRedemption:
		return fmt.Sprintf("%s redeemed %s", a.User, a.Reward)
	case AlertFirstWord:
		return fmt.Sprintf("%s chatted for the first time", a.User)
	default:
		return fmt.Sprintf("%s: %s", a.User, a.Type)
	}
}

// Counter is one named counter slot on the overlay. Slots are created at
// store initialisation and never destroyed during a session.
type Counter struct {
	Value         int64     `json:"value"`
	Label         string    `json:"label"`
	Visible       bool      `json:"visible"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// Goal tracks progress toward a stream goal. IsComplete latches true once
// Current reaches Target.
type Goal struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Current     int64     `json:"current"`
	Target      int64     `json:"target"`
	Label       string    `json:"label"`
	IsActive    bool      `json:"isActive"`
	IsComplete  bool      `json:"isComplete"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// ActivityItem is one row of the newest-first activity feed.
type ActivityItem struct {
	ID         string    `json:"id"`
	Type       AlertType `json:"type"`
	User       string    `json:"user"`
	Summary    string    `json:"summary"`
	OccurredAt time.Time `json:"occurredAt"`
}
