package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrNotConfigured       = errors.New("adapter not configured")
	ErrMarketNotOpen       = errors.New("market not open for trading")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrSlippageExceeded    = errors.New("slippage bound exceeded")
	ErrLedgerRejected      = errors.New("ledger rejected transaction")
	ErrIndeterminate       = errors.New("ledger outcome indeterminate")
	ErrSignerMismatch      = errors.New("transaction signer mismatch")
	ErrLockHeld            = errors.New("lock already held")
)
