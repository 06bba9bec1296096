package gormledger

import (
	"time"

	"gorm.io/datatypes"
)

// Account holds an address's native balance. Zero balances are not stored.
type Account struct {
	Address   string    `gorm:"primaryKey;size:128" json:"address"`
	Balance   uint64    `gorm:"not null" json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Account) TableName() string { return "ledger_accounts" }

// Token is the persisted form of ledger.Token. Destroyed tokens keep their row
// so their id is never handed out again.
type Token struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name        string         `gorm:"size:255" json:"name"`
	UnitName    string         `gorm:"size:32" json:"unit_name"`
	URL         string         `gorm:"size:512" json:"url"`
	Total       uint64         `gorm:"not null" json:"total"`
	Decimals    uint32         `gorm:"not null;default:0" json:"decimals"`
	Manager     string         `gorm:"size:128;index" json:"manager"`
	Reserve     string         `gorm:"size:128" json:"reserve"`
	Freeze      string         `gorm:"size:128" json:"freeze"`
	Clawback    string         `gorm:"size:128" json:"clawback"`
	Metadata    datatypes.JSON `json:"metadata"`
	Destroyed   bool           `gorm:"not null;default:false;index" json:"destroyed"`
	DestroyedAt *time.Time     `json:"destroyed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (Token) TableName() string { return "ledger_tokens" }

// Holding is the amount of a token an address holds.
type Holding struct {
	TokenID uint64 `gorm:"primaryKey;autoIncrement:false" json:"token_id"`
	Holder  string `gorm:"primaryKey;size:128" json:"holder"`
	Amount  uint64 `gorm:"not null" json:"amount"`
}

func (Holding) TableName() string { return "ledger_holdings" }

// Approval is a standing one-time pull authorization.
type Approval struct {
	TokenID   uint64    `gorm:"primaryKey;autoIncrement:false" json:"token_id"`
	Holder    string    `gorm:"primaryKey;size:128" json:"holder"`
	Operator  string    `gorm:"primaryKey;size:128" json:"operator"`
	CreatedAt time.Time `json:"created_at"`
}

func (Approval) TableName() string { return "ledger_approvals" }

// Delegation lets Delegate exercise Authority's administrative rights.
type Delegation struct {
	Authority string    `gorm:"primaryKey;size:128" json:"authority"`
	Delegate  string    `gorm:"primaryKey;size:128" json:"delegate"`
	CreatedAt time.Time `json:"created_at"`
}

func (Delegation) TableName() string { return "ledger_delegations" }

// Record is one registry-owned key/value entry.
type Record struct {
	Namespace string         `gorm:"primaryKey;size:64" json:"namespace"`
	RecordKey string         `gorm:"primaryKey;size:128;column:record_key" json:"key"`
	Value     datatypes.JSON `gorm:"not null" json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Record) TableName() string { return "registry_records" }

// Counter is a named monotonically increasing sequence.
type Counter struct {
	Name  string `gorm:"primaryKey;size:64" json:"name"`
	Value uint64 `gorm:"not null" json:"value"`
}

func (Counter) TableName() string { return "ledger_counters" }

// Models lists every table the backend owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Account{},
		&Token{},
		&Holding{},
		&Approval{},
		&Delegation{},
		&Record{},
		&Counter{},
	}
}
