package model

import "errors"

// ErrInsufficientData marks inputs too short to evaluate: too few bars
// fetched, or missing indicator values. It is local and non-fatal — the
// scanner short-circuits the current symbol/timeframe only and moves on.
var ErrInsufficientData = errors.New("insufficient data")
