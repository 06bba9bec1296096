// Package memory is an in-process ledger backend. State lives in maps guarded
// by a mutex; each unit of work writes to an overlay that is folded into the
// committed maps on Commit and dropped on Rollback.
package memory

import (
	"context"
	"sync"

	"carbon-scribe/credit-registry/internal/ledger"
)

type holdingKey struct {
	token  ledger.TokenID
	holder ledger.Address
}

type approvalKey struct {
	token    ledger.TokenID
	holder   ledger.Address
	operator ledger.Address
}

type delegationKey struct {
	authority ledger.Address
	delegate  ledger.Address
}

type recordKey struct {
	namespace string
	key       string
}

// Backend holds committed ledger state in memory.
type Backend struct {
	mu sync.Mutex

	balances    map[ledger.Address]uint64
	tokens      map[ledger.TokenID]*ledger.Token
	holdings    map[holdingKey]uint64
	approvals   map[approvalKey]bool
	delegations map[delegationKey]bool
	records     map[recordKey][]byte
	lastTokenID ledger.TokenID
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		balances:    make(map[ledger.Address]uint64),
		tokens:      make(map[ledger.TokenID]*ledger.Token),
		holdings:    make(map[holdingKey]uint64),
		approvals:   make(map[approvalKey]bool),
		delegations: make(map[delegationKey]bool),
		records:     make(map[recordKey][]byte),
	}
}

// Begin locks the backend until the returned store commits or rolls back.
func (b *Backend) Begin(ctx context.Context) (ledger.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	return &store{
		b:           b,
		balances:    newOverlay(b.balances),
		tokens:      newOverlay(b.tokens),
		holdings:    newOverlay(b.holdings),
		approvals:   newOverlay(b.approvals),
		delegations: newOverlay(b.delegations),
		records:     newOverlay(b.records),
		lastTokenID: b.lastTokenID,
	}, nil
}

func (b *Backend) Close() error {
	return nil
}

type store struct {
	b        *Backend
	finished bool

	balances    *overlay[ledger.Address, uint64]
	tokens      *overlay[ledger.TokenID, *ledger.Token]
	holdings    *overlay[holdingKey, uint64]
	approvals   *overlay[approvalKey, bool]
	delegations *overlay[delegationKey, bool]
	records     *overlay[recordKey, []byte]
	lastTokenID ledger.TokenID
}

func (s *store) check() error {
	if s.finished {
		return ledger.ErrTxDone
	}
	return nil
}

func (s *store) Balance(addr ledger.Address) (uint64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	v, _ := s.balances.get(addr)
	return v, nil
}

func (s *store) SetBalance(addr ledger.Address, amount uint64) error {
	if err := s.check(); err != nil {
		return err
	}
	if amount == 0 {
		s.balances.del(addr)
	} else {
		s.balances.set(addr, amount)
	}
	return nil
}

func (s *store) Token(id ledger.TokenID) (*ledger.Token, bool, error) {
	if err := s.check(); err != nil {
		return nil, false, err
	}
	tok, ok := s.tokens.get(id)
	if !ok {
		return nil, false, nil
	}
	return tok.Clone(), true, nil
}

func (s *store) PutToken(tok *ledger.Token) error {
	if err := s.check(); err != nil {
		return err
	}
	s.tokens.set(tok.ID, tok.Clone())
	return nil
}

func (s *store) DestroyToken(id ledger.TokenID) error {
	if err := s.check(); err != nil {
		return err
	}
	s.tokens.del(id)
	return nil
}

func (s *store) NextTokenID() (ledger.TokenID, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	s.lastTokenID++
	return s.lastTokenID, nil
}

func (s *store) Holding(id ledger.TokenID, holder ledger.Address) (uint64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	v, _ := s.holdings.get(holdingKey{id, holder})
	return v, nil
}

func (s *store) SetHolding(id ledger.TokenID, holder ledger.Address, amount uint64) error {
	if err := s.check(); err != nil {
		return err
	}
	k := holdingKey{id, holder}
	if amount == 0 {
		s.holdings.del(k)
	} else {
		s.holdings.set(k, amount)
	}
	return nil
}

func (s *store) Approved(id ledger.TokenID, holder, operator ledger.Address) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	v, _ := s.approvals.get(approvalKey{id, holder, operator})
	return v, nil
}

func (s *store) SetApproved(id ledger.TokenID, holder, operator ledger.Address, approved bool) error {
	if err := s.check(); err != nil {
		return err
	}
	k := approvalKey{id, holder, operator}
	if approved {
		s.approvals.set(k, true)
	} else {
		s.approvals.del(k)
	}
	return nil
}

func (s *store) Delegated(authority, delegate ledger.Address) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	v, _ := s.delegations.get(delegationKey{authority, delegate})
	return v, nil
}

func (s *store) SetDelegated(authority, delegate ledger.Address) error {
	if err := s.check(); err != nil {
		return err
	}
	s.delegations.set(delegationKey{authority, delegate}, true)
	return nil
}

func (s *store) Record(namespace, key string) ([]byte, bool, error) {
	if err := s.check(); err != nil {
		return nil, false, err
	}
	v, ok := s.records.get(recordKey{namespace, key})
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *store) PutRecord(namespace, key string, value []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	s.records.set(recordKey{namespace, key}, append([]byte(nil), value...))
	return nil
}

func (s *store) Commit() error {
	if err := s.check(); err != nil {
		return err
	}
	s.balances.apply()
	s.tokens.apply()
	s.holdings.apply()
	s.approvals.apply()
	s.delegations.apply()
	s.records.apply()
	s.b.lastTokenID = s.lastTokenID
	s.finish()
	return nil
}

func (s *store) Rollback() error {
	if s.finished {
		return nil
	}
	s.finish()
	return nil
}

func (s *store) finish() {
	s.finished = true
	s.b.mu.Unlock()
}

// overlay records pending writes over a committed map.
type overlay[K comparable, V any] struct {
	base  map[K]V
	dirty map[K]V
	gone  map[K]struct{}
}

func newOverlay[K comparable, V any](base map[K]V) *overlay[K, V] {
	return &overlay[K, V]{
		base:  base,
		dirty: make(map[K]V),
		gone:  make(map[K]struct{}),
	}
}

func (o *overlay[K, V]) get(k K) (V, bool) {
	if _, ok := o.gone[k]; ok {
		var zero V
		return zero, false
	}
	if v, ok := o.dirty[k]; ok {
		return v, true
	}
	v, ok := o.base[k]
	return v, ok
}

func (o *overlay[K, V]) set(k K, v V) {
	delete(o.gone, k)
	o.dirty[k] = v
}

func (o *overlay[K, V]) del(k K) {
	delete(o.dirty, k)
	o.gone[k] = struct{}{}
}

func (o *overlay[K, V]) apply() {
	for k := range o.gone {
		delete(o.base, k)
	}
	for k, v := range o.dirty {
		o.base[k] = v
	}
}
