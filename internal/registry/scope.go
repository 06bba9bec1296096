package registry

import (
	"fmt"
	"math/bits"
	"time"

	"carbon-scribe/credit-registry/internal/ledger"
)

const configKey = "config"

// Scope confines record access to one registry's namespace. Registries never
// open each other's namespace.
type Scope struct {
	tx        ledger.Tx
	namespace string
}

// NewScope binds tx to namespace.
func NewScope(tx ledger.Tx, namespace string) Scope {
	return Scope{tx: tx, namespace: namespace}
}

func (s Scope) Tx() ledger.Tx { return s.tx }

// Get decodes the record under key into v.
func (s Scope) Get(key string, v any) (bool, error) {
	return s.tx.Get(s.namespace, key, v)
}

// Put writes v under key.
func (s Scope) Put(key string, v any) error {
	return s.tx.Put(s.namespace, key, v)
}

// Header is the part of every registry's configuration record that is fixed
// at creation.
type Header struct {
	Admin     ledger.Address `json:"admin"`
	CreatedAt time.Time      `json:"created_at"`
}

// IsAdmin reports whether caller is the registry admin.
func (h Header) IsAdmin(caller ledger.Address) bool {
	return caller != "" && caller == h.Admin
}

// InitConfig stores cfg as the registry's configuration record. It fails with
// ErrAlreadyInitialized on every call after the first.
func InitConfig(s Scope, cfg any) error {
	var existing map[string]any
	ok, err := s.Get(configKey, &existing)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}
	return s.Put(configKey, cfg)
}

// LoadConfig decodes the configuration record into cfg, failing with
// ErrNotInitialized if the registry was never created.
func LoadConfig(s Scope, cfg any) error {
	ok, err := s.Get(configKey, cfg)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	return nil
}

// SaveConfig overwrites the configuration record. Only counters move after
// creation.
func SaveConfig(s Scope, cfg any) error {
	return s.Put(configKey, cfg)
}

// AddUint64 returns a+b or ErrOverflow.
func AddUint64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}
