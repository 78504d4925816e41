package service

import "errors"

// Business-rule violations, surfaced to the triggering caller by name.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOutOfStock          = errors.New("out of stock")
	ErrHoldNotOwned        = errors.New("hold not owned by user")
	ErrSagaNotFound        = errors.New("redemption saga not found")
	ErrSagaTerminal        = errors.New("redemption saga already terminal")
)

// Invariant violations. These indicate a programming error or corrupted
// data and are never silently swallowed.
var (
	ErrRefMismatch     = errors.New("duplicate ledger ref with mismatched delta")
	ErrPhaseRegression = errors.New("trading session phase regression")
)

// errAlreadyRunning signals that another worker holds the session lock for
// the day; the trigger is simply redelivered later.
var errAlreadyRunning = errors.New("settlement already running for day")
