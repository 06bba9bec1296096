package registry

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/ledger/memory"
)

type testConfig struct {
	Header
	Total uint64 `json:"total"`
}

func TestInitConfigOnce(t *testing.T) {
	ctx := context.Background()
	h := ledger.New(memory.New())

	require.NoError(t, h.Atomic(ctx, "admin", func(tx ledger.Tx) error {
		return InitConfig(NewScope(tx, "test"), testConfig{Header: Header{Admin: "admin"}})
	}))

	err := h.Atomic(ctx, "other", func(tx ledger.Tx) error {
		return InitConfig(NewScope(tx, "test"), testConfig{Header: Header{Admin: "other"}})
	})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	require.NoError(t, h.View(ctx, func(tx ledger.Tx) error {
		var cfg testConfig
		require.NoError(t, LoadConfig(NewScope(tx, "test"), &cfg))
		assert.True(t, cfg.IsAdmin("admin"))
		assert.False(t, cfg.IsAdmin("other"))
		assert.False(t, cfg.IsAdmin(""))
		return nil
	}))
}

func TestLoadConfigNotInitialized(t *testing.T) {
	h := ledger.New(memory.New())
	err := h.View(context.Background(), func(tx ledger.Tx) error {
		var cfg testConfig
		return LoadConfig(NewScope(tx, "missing"), &cfg)
	})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestAddUint64(t *testing.T) {
	v, err := AddUint64(2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v)

	_, err = AddUint64(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestStatusCode(t *testing.T) {
	cases := map[error]int{
		nil:                                   http.StatusOK,
		ErrUnauthorized:                       http.StatusForbidden,
		ErrNotVerified:                        http.StatusForbidden,
		ErrNotFound:                           http.StatusNotFound,
		ErrInvalidQuantity:                    http.StatusBadRequest,
		ErrInvalidVintage:                     http.StatusBadRequest,
		ErrInvalidPrice:                       http.StatusBadRequest,
		ErrEscrowMismatch:                     http.StatusBadRequest,
		ErrPaymentMismatch:                    http.StatusBadRequest,
		ErrDuplicateProject:                   http.StatusConflict,
		ErrNotActive:                          http.StatusConflict,
		ErrAlreadyInitialized:                 http.StatusConflict,
		ErrCustodyError:                       http.StatusConflict,
		fmt.Errorf("wrap: %w", ErrNotActive):  http.StatusConflict,
		fmt.Errorf("database is on fire"):     http.StatusInternalServerError,
		fmt.Errorf("%w", ledger.ErrOverflow):  http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusCode(err), "%v", err)
	}
}

type recorder struct{ events []Event }

func (r *recorder) Publish(ev Event) { r.events = append(r.events, ev) }

func TestNotify(t *testing.T) {
	r := &recorder{}
	Notify(r, zap.NewNop(), Event{Kind: EventCreditMinted, TokenID: 1})
	Notify(nil, zap.NewNop(), Event{Kind: EventCreditSold})
	NopPublisher{}.Publish(Event{})

	require.Len(t, r.events, 1)
	assert.Equal(t, EventCreditMinted, r.events[0].Kind)
}
