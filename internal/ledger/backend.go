package ledger

import "context"

// Backend is the pluggable storage a Host runs on. It only stores state; all
// custody, authority and fee rules live in Host.
type Backend interface {
	// Begin opens a unit of work. Nothing written through the Store is
	// visible to other units until Commit returns nil.
	Begin(ctx context.Context) (Store, error)
	Close() error
}

// Store is one unit of work against a Backend. Missing rows read as zero
// values, and writing a zero amount removes the row.
type Store interface {
	Balance(addr Address) (uint64, error)
	SetBalance(addr Address, amount uint64) error

	Token(id TokenID) (*Token, bool, error)
	PutToken(tok *Token) error
	DestroyToken(id TokenID) error
	NextTokenID() (TokenID, error)

	Holding(id TokenID, holder Address) (uint64, error)
	SetHolding(id TokenID, holder Address, amount uint64) error

	Approved(id TokenID, holder, operator Address) (bool, error)
	SetApproved(id TokenID, holder, operator Address, approved bool) error

	Delegated(authority, delegate Address) (bool, error)
	SetDelegated(authority, delegate Address) error

	Record(namespace, key string) ([]byte, bool, error)
	PutRecord(namespace, key string, value []byte) error

	Commit() error
	Rollback() error
}
