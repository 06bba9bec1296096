// Package gormledger persists ledger state in a relational database through
// gorm. Each unit of work is one database transaction.
package gormledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"carbon-scribe/credit-registry/internal/ledger"
)

const tokenSequence = "token_id"

// Backend is a ledger.Backend over a gorm connection.
type Backend struct {
	db           *gorm.DB
	serializable bool
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithSerializable runs every unit of work at serializable isolation. Use it
// when more than one process writes to the same database.
func WithSerializable() BackendOption {
	return func(b *Backend) { b.serializable = true }
}

// NewBackend wraps db. The schema must already exist; see Migrate.
func NewBackend(db *gorm.DB, opts ...BackendOption) *Backend {
	b := &Backend{db: db}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Migrate creates or updates the ledger tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate ledger tables: %w", err)
	}
	return nil
}

func (b *Backend) Begin(ctx context.Context) (ledger.Store, error) {
	var opts []*sql.TxOptions
	if b.serializable {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}
	tx := b.db.WithContext(ctx).Begin(opts...)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &store{tx: tx}, nil
}

func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type store struct {
	tx       *gorm.DB
	finished bool
}

func (s *store) db() (*gorm.DB, error) {
	if s.finished {
		return nil, ledger.ErrTxDone
	}
	return s.tx, nil
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func (s *store) Balance(addr ledger.Address) (uint64, error) {
	db, err := s.db()
	if err != nil {
		return 0, err
	}
	var acc Account
	if err := db.Take(&acc, "address = ?", string(addr)).Error; err != nil {
		if notFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load account %s: %w", addr, err)
	}
	return acc.Balance, nil
}

func (s *store) SetBalance(addr ledger.Address, amount uint64) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	if amount == 0 {
		return db.Delete(&Account{}, "address = ?", string(addr)).Error
	}
	acc := Account{Address: string(addr), Balance: amount, UpdatedAt: time.Now().UTC()}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
	}).Create(&acc).Error
}

func (s *store) Token(id ledger.TokenID) (*ledger.Token, bool, error) {
	db, err := s.db()
	if err != nil {
		return nil, false, err
	}
	var row Token
	if err := db.Take(&row, "id = ? AND destroyed = ?", uint64(id), false).Error; err != nil {
		if notFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load token %s: %w", id, err)
	}
	tok := &ledger.Token{
		ID:        ledger.TokenID(row.ID),
		Name:      row.Name,
		UnitName:  row.UnitName,
		URL:       row.URL,
		Total:     row.Total,
		Decimals:  row.Decimals,
		Manager:   ledger.Address(row.Manager),
		Reserve:   ledger.Address(row.Reserve),
		Freeze:    ledger.Address(row.Freeze),
		Clawback:  ledger.Address(row.Clawback),
		CreatedAt: row.CreatedAt.UTC(),
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &tok.Metadata); err != nil {
			return nil, false, fmt.Errorf("failed to decode token %s metadata: %w", id, err)
		}
	}
	return tok, true, nil
}

func (s *store) PutToken(tok *ledger.Token) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	meta, err := json.Marshal(tok.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode token metadata: %w", err)
	}
	row := Token{
		ID:        uint64(tok.ID),
		Name:      tok.Name,
		UnitName:  tok.UnitName,
		URL:       tok.URL,
		Total:     tok.Total,
		Decimals:  tok.Decimals,
		Manager:   string(tok.Manager),
		Reserve:   string(tok.Reserve),
		Freeze:    string(tok.Freeze),
		Clawback:  string(tok.Clawback),
		Metadata:  meta,
		CreatedAt: tok.CreatedAt,
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *store) DestroyToken(id ledger.TokenID) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := db.Model(&Token{}).Where("id = ?", uint64(id)).Updates(map[string]interface{}{
		"destroyed":    true,
		"destroyed_at": now,
	}).Error; err != nil {
		return fmt.Errorf("failed to destroy token %s: %w", id, err)
	}
	if err := db.Delete(&Holding{}, "token_id = ?", uint64(id)).Error; err != nil {
		return err
	}
	return db.Delete(&Approval{}, "token_id = ?", uint64(id)).Error
}

func (s *store) NextTokenID() (ledger.TokenID, error) {
	db, err := s.db()
	if err != nil {
		return 0, err
	}
	var c Counter
	if err := db.Take(&c, "name = ?", tokenSequence).Error; err != nil && !notFound(err) {
		return 0, err
	}
	c.Name = tokenSequence
	c.Value++
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&c).Error; err != nil {
		return 0, err
	}
	return ledger.TokenID(c.Value), nil
}

func (s *store) Holding(id ledger.TokenID, holder ledger.Address) (uint64, error) {
	db, err := s.db()
	if err != nil {
		return 0, err
	}
	var h Holding
	if err := db.Take(&h, "token_id = ? AND holder = ?", uint64(id), string(holder)).Error; err != nil {
		if notFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return h.Amount, nil
}

func (s *store) SetHolding(id ledger.TokenID, holder ledger.Address, amount uint64) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	if amount == 0 {
		return db.Delete(&Holding{}, "token_id = ? AND holder = ?", uint64(id), string(holder)).Error
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_id"}, {Name: "holder"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount"}),
	}).Create(&Holding{TokenID: uint64(id), Holder: string(holder), Amount: amount}).Error
}

func (s *store) Approved(id ledger.TokenID, holder, operator ledger.Address) (bool, error) {
	db, err := s.db()
	if err != nil {
		return false, err
	}
	var n int64
	err = db.Model(&Approval{}).
		Where("token_id = ? AND holder = ? AND operator = ?", uint64(id), string(holder), string(operator)).
		Count(&n).Error
	return n > 0, err
}

func (s *store) SetApproved(id ledger.TokenID, holder, operator ledger.Address, approved bool) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	if !approved {
		return db.Delete(&Approval{},
			"token_id = ? AND holder = ? AND operator = ?", uint64(id), string(holder), string(operator)).Error
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Approval{
		TokenID:   uint64(id),
		Holder:    string(holder),
		Operator:  string(operator),
		CreatedAt: time.Now().UTC(),
	}).Error
}

func (s *store) Delegated(authority, delegate ledger.Address) (bool, error) {
	db, err := s.db()
	if err != nil {
		return false, err
	}
	var n int64
	err = db.Model(&Delegation{}).
		Where("authority = ? AND delegate = ?", string(authority), string(delegate)).
		Count(&n).Error
	return n > 0, err
}

func (s *store) SetDelegated(authority, delegate ledger.Address) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Delegation{
		Authority: string(authority),
		Delegate:  string(delegate),
		CreatedAt: time.Now().UTC(),
	}).Error
}

func (s *store) Record(namespace, key string) ([]byte, bool, error) {
	db, err := s.db()
	if err != nil {
		return nil, false, err
	}
	var r Record
	if err := db.Take(&r, "namespace = ? AND record_key = ?", namespace, key).Error; err != nil {
		if notFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load record %s/%s: %w", namespace, key, err)
	}
	return []byte(r.Value), true, nil
}

func (s *store) PutRecord(namespace, key string, value []byte) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Record{
		Namespace: namespace,
		RecordKey: key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}).Error
}

func (s *store) Commit() error {
	db, err := s.db()
	if err != nil {
		return err
	}
	s.finished = true
	return db.Commit().Error
}

func (s *store) Rollback() error {
	if s.finished {
		return nil
	}
	s.finished = true
	return s.tx.Rollback().Error
}
