package ledger

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"time"
)

// txn enforces custody, authority and fee rules on top of a Store.
type txn struct {
	id       string
	sender   Address
	now      time.Time
	minFee   uint64
	readOnly bool
	done     bool
	store    Store
}

func (t *txn) ID() string      { return t.id }
func (t *txn) Sender() Address { return t.sender }
func (t *txn) Now() time.Time  { return t.now }
func (t *txn) MinFee() uint64  { return t.minFee }

func (t *txn) writable() error {
	if t.done {
		return ErrTxDone
	}
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

// charge takes the per-effect fee from the acting account.
func (t *txn) charge(actor Address) error {
	if t.minFee == 0 {
		return nil
	}
	bal, err := t.store.Balance(actor)
	if err != nil {
		return err
	}
	if bal < t.minFee {
		return fmt.Errorf("%w: %s cannot cover fee %d", ErrInsufficientFunds, actor, t.minFee)
	}
	return t.store.SetBalance(actor, bal-t.minFee)
}

// acts reports whether by may exercise authority's administrative rights.
func (t *txn) acts(by, authority Address) (bool, error) {
	if authority == "" {
		return false, nil
	}
	if by == authority {
		return true, nil
	}
	return t.store.Delegated(authority, by)
}

func (t *txn) CreateToken(by Address, spec TokenSpec) (TokenID, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	if by == "" || spec.Owner == "" || spec.Authority == "" {
		return 0, ErrInvalidAddress
	}
	if err := t.charge(by); err != nil {
		return 0, err
	}

	id, err := t.store.NextTokenID()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate token id: %w", err)
	}
	tok := &Token{
		ID:        id,
		Name:      spec.Name,
		UnitName:  spec.UnitName,
		URL:       spec.URL,
		Total:     1,
		Decimals:  0,
		Manager:   spec.Authority,
		Reserve:   spec.Owner,
		Freeze:    spec.Authority,
		Clawback:  spec.Authority,
		Metadata:  spec.Metadata,
		CreatedAt: t.now,
	}
	if err := t.store.PutToken(tok.Clone()); err != nil {
		return 0, fmt.Errorf("failed to store token: %w", err)
	}
	if err := t.store.SetHolding(id, spec.Owner, tok.Total); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *txn) Token(id TokenID) (*Token, error) {
	tok, ok, err := t.store.Token(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, id)
	}
	return tok.Clone(), nil
}

func (t *txn) Holding(id TokenID, holder Address) (uint64, error) {
	return t.store.Holding(id, holder)
}

func (t *txn) TransferToken(by Address, tr AssetTransfer) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.checkTransfer(tr); err != nil {
		return err
	}
	if by != tr.From {
		approved, err := t.store.Approved(tr.TokenID, tr.From, by)
		if err != nil {
			return err
		}
		if !approved {
			return fmt.Errorf("%w: %s may not move token %s held by %s", ErrNotAuthorized, by, tr.TokenID, tr.From)
		}
		if err := t.store.SetApproved(tr.TokenID, tr.From, by, false); err != nil {
			return err
		}
	}
	return t.move(by, tr)
}

func (t *txn) Clawback(by Address, tr AssetTransfer) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.checkTransfer(tr); err != nil {
		return err
	}
	tok, err := t.Token(tr.TokenID)
	if err != nil {
		return err
	}
	ok, err := t.acts(by, tok.Clawback)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s lacks clawback authority over token %s", ErrNotAuthorized, by, tr.TokenID)
	}
	return t.move(by, tr)
}

func (t *txn) checkTransfer(tr AssetTransfer) error {
	if tr.From == "" || tr.To == "" {
		return ErrInvalidAddress
	}
	if tr.Amount == 0 {
		return ErrInvalidAmount
	}
	if _, err := t.Token(tr.TokenID); err != nil {
		return err
	}
	return nil
}

func (t *txn) move(by Address, tr AssetTransfer) error {
	from, err := t.store.Holding(tr.TokenID, tr.From)
	if err != nil {
		return err
	}
	if from < tr.Amount {
		return fmt.Errorf("%w: %s holds %d of token %s", ErrInsufficientHolding, tr.From, from, tr.TokenID)
	}
	if err := t.charge(by); err != nil {
		return err
	}
	if tr.From == tr.To {
		return nil
	}
	to, err := t.store.Holding(tr.TokenID, tr.To)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(to, tr.Amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	if err := t.store.SetHolding(tr.TokenID, tr.From, from-tr.Amount); err != nil {
		return err
	}
	return t.store.SetHolding(tr.TokenID, tr.To, sum)
}

func (t *txn) Approve(a Approval) error {
	if err := t.writable(); err != nil {
		return err
	}
	if a.Holder == "" || a.Operator == "" {
		return ErrInvalidAddress
	}
	if _, err := t.Token(a.TokenID); err != nil {
		return err
	}
	held, err := t.store.Holding(a.TokenID, a.Holder)
	if err != nil {
		return err
	}
	if held == 0 {
		return fmt.Errorf("%w: %s does not hold token %s", ErrInsufficientHolding, a.Holder, a.TokenID)
	}
	if err := t.charge(a.Holder); err != nil {
		return err
	}
	return t.store.SetApproved(a.TokenID, a.Holder, a.Operator, true)
}

func (t *txn) DestroyToken(by Address, id TokenID) error {
	if err := t.writable(); err != nil {
		return err
	}
	tok, err := t.Token(id)
	if err != nil {
		return err
	}
	ok, err := t.acts(by, tok.Manager)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s lacks manager authority over token %s", ErrNotAuthorized, by, id)
	}
	held, err := t.store.Holding(id, by)
	if err != nil {
		return err
	}
	if held != tok.Total {
		return fmt.Errorf("%w: destroying token %s requires the full supply", ErrInsufficientHolding, id)
	}
	if err := t.charge(by); err != nil {
		return err
	}
	if err := t.store.SetHolding(id, by, 0); err != nil {
		return err
	}
	return t.store.DestroyToken(id)
}

func (t *txn) Delegate(authority, delegate Address) error {
	if err := t.writable(); err != nil {
		return err
	}
	if authority == "" || delegate == "" {
		return ErrInvalidAddress
	}
	if err := t.charge(authority); err != nil {
		return err
	}
	return t.store.SetDelegated(authority, delegate)
}

func (t *txn) Pay(p Payment) error {
	if err := t.writable(); err != nil {
		return err
	}
	if p.From == "" || p.To == "" {
		return ErrInvalidAddress
	}
	from, err := t.store.Balance(p.From)
	if err != nil {
		return err
	}
	need, carry := bits.Add64(p.Amount, t.minFee, 0)
	if carry != 0 {
		return ErrOverflow
	}
	if from < need {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, p.From, from, need)
	}
	if p.From == p.To {
		return t.store.SetBalance(p.From, from-t.minFee)
	}
	if err := t.store.SetBalance(p.From, from-need); err != nil {
		return err
	}
	to, err := t.store.Balance(p.To)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(to, p.Amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	return t.store.SetBalance(p.To, sum)
}

func (t *txn) Balance(addr Address) (uint64, error) {
	return t.store.Balance(addr)
}

func (t *txn) Fund(addr Address, amount uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if addr == "" {
		return ErrInvalidAddress
	}
	bal, err := t.store.Balance(addr)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(bal, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	return t.store.SetBalance(addr, sum)
}

func (t *txn) Get(namespace, key string, v any) (bool, error) {
	raw, ok, err := t.store.Record(namespace, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode record %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

func (t *txn) Put(namespace, key string, v any) error {
	if err := t.writable(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record %s/%s: %w", namespace, key, err)
	}
	return t.store.PutRecord(namespace, key, raw)
}
