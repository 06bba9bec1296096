package ledger

import "errors"

var (
	ErrTokenNotFound       = errors.New("ledger: token not found")
	ErrInsufficientHolding = errors.New("ledger: insufficient token holding")
	ErrInsufficientFunds   = errors.New("ledger: insufficient funds")
	ErrNotAuthorized       = errors.New("ledger: not authorized")
	ErrInvalidAmount       = errors.New("ledger: invalid amount")
	ErrInvalidAddress      = errors.New("ledger: invalid address")
	ErrOverflow            = errors.New("ledger: arithmetic overflow")
	ErrReadOnly            = errors.New("ledger: read-only transaction")
	ErrTxDone              = errors.New("ledger: transaction already finished")
)
