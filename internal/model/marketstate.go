package model

import "time"

// SwingPoint is a local price extremum confirmed by surrounding bars.
// Derived per scan, never persisted.
type SwingPoint struct {
	Price float64   `json:"price"`
	TS    time.Time `json:"ts"`
	Index int       `json:"index"`
}

// LevelKind distinguishes clustered support from resistance zones.
type LevelKind string

const (
	LevelSupport    LevelKind = "support"
	LevelResistance LevelKind = "resistance"
)

// SRLevel is a clustered price zone of repeated swing touches.
// Price is the arithmetic mean of the cluster members.
type SRLevel struct {
	Price      float64   `json:"price"`
	Kind       LevelKind `json:"kind"`
	TouchCount int       `json:"touch_count"`
}

// PatternResult is a stateless classification of the most recent 1-2 bars.
type PatternResult struct {
	Detected    bool   `json:"detected"`
	Description string `json:"description"`
}

// PatternSet holds all candle patterns evaluated on the latest bars.
// Every field is always present; undetected patterns carry Detected=false.
type PatternSet struct {
	BullishEngulfing PatternResult `json:"bullish_engulfing"`
	BearishEngulfing PatternResult `json:"bearish_engulfing"`
	BullishPin       PatternResult `json:"bullish_pin"`
	BearishPin       PatternResult `json:"bearish_pin"`
	InsideBar        PatternResult `json:"inside_bar"`
}

// TrendDirection classifies the prevailing market direction.
type TrendDirection string

const (
	TrendUp         TrendDirection = "uptrend"
	TrendDown       TrendDirection = "downtrend"
	TrendChoppy     TrendDirection = "choppy"
	TrendTransition TrendDirection = "transition"
	TrendUnclear    TrendDirection = "unclear"
)

// TrendStrength grades how convincing the classified direction is.
type TrendStrength string

const (
	StrengthStrong   TrendStrength = "strong"
	StrengthModerate TrendStrength = "moderate"
	StrengthWeak     TrendStrength = "weak"
)

// Trend is the output of the trend decision table plus the raw alignment
// and swing-structure flags it was derived from. The Candidate Filter
// consumes the flags directly.
type Trend struct {
	Direction   TrendDirection `json:"direction"`
	Strength    TrendStrength  `json:"strength"`
	Description string         `json:"description"`

	PriceAboveFast bool `json:"price_above_fast"`
	PriceAboveSlow bool `json:"price_above_slow"`
	FastAboveSlow  bool `json:"fast_above_slow"`

	HigherHighs bool `json:"higher_highs"`
	HigherLows  bool `json:"higher_lows"`
	LowerHighs  bool `json:"lower_highs"`
	LowerLows   bool `json:"lower_lows"`
}

// MarketState is one coherent snapshot of market structure for a single
// symbol/timeframe, built fresh per scan cycle and never mutated in place.
// Indicator fields are nil when the input series was too short to define
// them (leading-undefined semantics of the underlying recurrences).
type MarketState struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	AsOf      time.Time `json:"as_of"` // timestamp of the newest bar

	FastMA     *float64 `json:"fast_ma"`
	SlowMA     *float64 `json:"slow_ma"`
	Volatility *float64 `json:"volatility"` // ATR
	Momentum   *float64 `json:"momentum"`   // RSI

	SwingHighs []SwingPoint `json:"swing_highs"`
	SwingLows  []SwingPoint `json:"swing_lows"`
	Levels     []SRLevel    `json:"levels"`

	// NearestLevel is set only when the closest level is within the
	// proximity threshold (ATR-scaled); nil otherwise.
	NearestLevel    *SRLevel `json:"nearest_level"`
	NearestDistance float64  `json:"nearest_distance"`

	Patterns PatternSet `json:"patterns"`
	Trend    Trend      `json:"trend"`

	CurrentPrice float64 `json:"current_price"`
	BarCount     int     `json:"bar_count"`

	// RecentCloses holds the closes of the newest bars (oldest first,
	// last element equals CurrentPrice), sized by the composer's
	// pullback lookback. Kept on the snapshot so the candidate filter
	// stays a pure function of MarketState.
	RecentCloses []float64 `json:"recent_closes"`
}
