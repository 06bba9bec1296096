// Package ledger defines the ledger service the registries run on: native
// balances, unique tokens with custody rules, a per-registry record store and
// the atomic bundle that commits all of an operation's effects together.
package ledger

import (
	"strconv"
	"time"
)

// Address identifies an account on the ledger. Users and registries both
// have one.
type Address string

// TokenID identifies a token. IDs are never reused, even after destruction.
type TokenID uint64

// String returns the decimal form used in record keys and URLs.
func (id TokenID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseTokenID parses the decimal form produced by String.
func ParseTokenID(s string) (TokenID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TokenID(v), nil
}

// Token is a unique, non-fungible asset. Manager, Freeze and Clawback hold
// the administrative authority; Reserve records the residual-rights holder.
type Token struct {
	ID        TokenID           `json:"id"`
	Name      string            `json:"name"`
	UnitName  string            `json:"unit_name"`
	URL       string            `json:"url"`
	Total     uint64            `json:"total"`
	Decimals  uint32            `json:"decimals"`
	Manager   Address           `json:"manager"`
	Reserve   Address           `json:"reserve"`
	Freeze    Address           `json:"freeze"`
	Clawback  Address           `json:"clawback"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Clone returns a deep copy of the token.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// TokenSpec describes a token to create. The single unit is credited to
// Owner; Authority becomes manager, freeze and clawback.
type TokenSpec struct {
	Name      string
	UnitName  string
	URL       string
	Owner     Address
	Authority Address
	Metadata  map[string]string
}

// AssetTransfer moves Amount units of a token from one account to another.
type AssetTransfer struct {
	TokenID TokenID `json:"token_id"`
	From    Address `json:"from"`
	To      Address `json:"to"`
	Amount  uint64  `json:"amount"`
}

// Payment moves native units from one account to another.
type Payment struct {
	From   Address `json:"from"`
	To     Address `json:"to"`
	Amount uint64  `json:"amount"`
}

// Approval is a holder's one-time authorization for Operator to pull the
// holder's unit of a token.
type Approval struct {
	TokenID  TokenID `json:"token_id"`
	Holder   Address `json:"holder"`
	Operator Address `json:"operator"`
}
