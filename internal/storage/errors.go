package storage

import "errors"

// ErrNoIVReadings is returned when no IV readings are found for a symbol
var ErrNoIVReadings = errors.New("no IV readings found")

// ErrPositionNotFound is returned when a position id is not in the store
var ErrPositionNotFound = errors.New("position not found")

// ErrInvalidTicker is returned for tickers that fail basic format checks
var ErrInvalidTicker = errors.New("invalid ticker")

// ErrInvalidPosition is returned when a position fails validation
var ErrInvalidPosition = errors.New("invalid position")
