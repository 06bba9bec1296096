package marketplace

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/ledger/memory"
	"carbon-scribe/credit-registry/internal/registry"
)

const (
	admin   ledger.Address = "ADMIN"
	seller  ledger.Address = "SELLER"
	buyer   ledger.Address = "BUYER"
	other   ledger.Address = "OTHER"
	market  ledger.Address = "MARKET_APP"
	issuing ledger.Address = "ISSUANCE_APP"

	price = 1_000_000
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	host   *ledger.Host
	market *Registry
	events *recorder
}

type recorder struct {
	mu     sync.Mutex
	events []registry.Event
}

func (r *recorder) Publish(ev registry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newFixture(t *testing.T, feeBps uint64, opts ...ledger.Option) *fixture {
	t.Helper()
	host := ledger.New(memory.New(), opts...)
	rec := &recorder{}
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		host:   host,
		market: New(host, market, zaptest.NewLogger(t), rec),
		events: rec,
	}
	require.NoError(t, f.market.CreateMarketplace(f.ctx, admin, feeBps))
	return f
}

func (f *fixture) mint(owner ledger.Address) ledger.TokenID {
	f.t.Helper()
	var id ledger.TokenID
	require.NoError(f.t, f.host.Atomic(f.ctx, issuing, func(tx ledger.Tx) error {
		if err := tx.Fund(issuing, tx.MinFee()); err != nil {
			return err
		}
		var err error
		id, err = tx.CreateToken(issuing, ledger.TokenSpec{Name: "P1", UnitName: "CCT", Owner: owner, Authority: issuing})
		return err
	}))
	return id
}

func (f *fixture) fund(addr ledger.Address, amount uint64) {
	f.t.Helper()
	require.NoError(f.t, f.host.Atomic(f.ctx, addr, func(tx ledger.Tx) error {
		return tx.Fund(addr, amount)
	}))
}

func (f *fixture) balance(addr ledger.Address) uint64 {
	f.t.Helper()
	var v uint64
	require.NoError(f.t, f.host.View(f.ctx, func(tx ledger.Tx) error {
		var err error
		v, err = tx.Balance(addr)
		return err
	}))
	return v
}

func (f *fixture) holding(id ledger.TokenID, addr ledger.Address) uint64 {
	f.t.Helper()
	var v uint64
	require.NoError(f.t, f.host.View(f.ctx, func(tx ledger.Tx) error {
		var err error
		v, err = tx.Holding(id, addr)
		return err
	}))
	return v
}

func deposit(id ledger.TokenID, from ledger.Address) ledger.AssetTransfer {
	return ledger.AssetTransfer{TokenID: id, From: from, To: market, Amount: 1}
}

func terms(id ledger.TokenID, p uint64) ListRequest {
	return ListRequest{TokenID: id, Price: p, CO2Tonnes: 100, VintageYear: 2023, ProjectType: "forestry"}
}

func (f *fixture) list(id ledger.TokenID, from ledger.Address) {
	f.t.Helper()
	require.NoError(f.t, f.market.ListCredit(f.ctx, from, deposit(id, from), terms(id, price)))
}

func pay(from ledger.Address, amount uint64) ledger.Payment {
	return ledger.Payment{From: from, To: market, Amount: amount}
}

func TestMarketplaceScenario(t *testing.T) {
	f := newFixture(t, 250)
	t1 := f.mint(seller)
	f.fund(buyer, 2_000_000)

	f.list(t1, seller)
	assert.Equal(t, uint64(1), f.holding(t1, market), "token is in escrow")
	assert.Zero(t, f.holding(t1, seller))

	require.NoError(t, f.market.BuyCredit(f.ctx, buyer, pay(buyer, price), t1))

	assert.Equal(t, uint64(975_000), f.balance(seller))
	assert.Equal(t, uint64(25_000), f.balance(admin))
	assert.Equal(t, uint64(1_000_000), f.balance(buyer))
	assert.Zero(t, f.balance(market))
	assert.Equal(t, uint64(1), f.holding(t1, buyer))
	assert.Zero(t, f.holding(t1, market))

	stats, err := f.market.GetStats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Volume)
	assert.Equal(t, uint64(1), stats.Trades)
	assert.Equal(t, uint64(price), stats.VolumeMicro)

	l, err := f.market.GetListing(f.ctx, t1)
	require.NoError(t, err)
	assert.False(t, l.Active)
	assert.Equal(t, StatusSold, l.Status)
	assert.Equal(t, buyer, l.Buyer)
	assert.NotNil(t, l.ClosedAt)
	assert.Equal(t, 2, f.events.count())
}

func TestCreateMarketplace(t *testing.T) {
	f := newFixture(t, 250)
	assert.ErrorIs(t, f.market.CreateMarketplace(f.ctx, other, 100), registry.ErrAlreadyInitialized)

	fresh := New(ledger.New(memory.New()), market, zaptest.NewLogger(t), nil)
	assert.ErrorIs(t, fresh.CreateMarketplace(f.ctx, admin, BasisPoints+1), registry.ErrInvalidFee)
	require.NoError(t, fresh.CreateMarketplace(f.ctx, admin, BasisPoints))
}

func TestListCreditValidation(t *testing.T) {
	f := newFixture(t, 250)
	id := f.mint(seller)
	wrong := f.mint(seller)

	err := f.market.ListCredit(f.ctx, seller, deposit(id, seller), terms(id, 0))
	assert.ErrorIs(t, err, registry.ErrInvalidPrice)

	cases := map[string]ledger.AssetTransfer{
		"wrong receiver": {TokenID: id, From: seller, To: other, Amount: 1},
		"wrong token":    {TokenID: wrong, From: seller, To: market, Amount: 1},
		"two units":      {TokenID: id, From: seller, To: market, Amount: 2},
		"zero units":     {TokenID: id, From: seller, To: market, Amount: 0},
		"wrong sender":   {TokenID: id, From: other, To: market, Amount: 1},
	}
	for name, dep := range cases {
		err := f.market.ListCredit(f.ctx, seller, dep, terms(id, price))
		assert.ErrorIs(t, err, registry.ErrEscrowMismatch, name)
	}

	err = f.market.ListCredit(f.ctx, other, deposit(id, other), terms(id, price))
	assert.ErrorIs(t, err, registry.ErrEscrowMismatch, "caller does not hold the token")
	assert.ErrorIs(t, err, ledger.ErrInsufficientHolding)

	_, err = f.market.GetListing(f.ctx, id)
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Equal(t, uint64(1), f.holding(id, seller))
	assert.Zero(t, f.events.count())
}

func TestListingAlreadyEscrowedCannotBeRelisted(t *testing.T) {
	f := newFixture(t, 250)
	id := f.mint(seller)
	f.list(id, seller)

	err := f.market.ListCredit(f.ctx, seller, deposit(id, seller), terms(id, 5))
	assert.ErrorIs(t, err, registry.ErrEscrowMismatch)

	l, err := f.market.GetListing(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(price), l.Price)
}

func TestBuyCreditFailuresLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t, 250)
	id := f.mint(seller)
	missing := f.mint(seller)
	f.fund(buyer, 5_000_000)
	f.list(id, seller)

	tests := []struct {
		name    string
		caller  ledger.Address
		payment ledger.Payment
		token   ledger.TokenID
		want    error
	}{
		{"no listing", buyer, pay(buyer, price), missing, registry.ErrNotFound},
		{"short payment", buyer, pay(buyer, price-1), id, registry.ErrPaymentMismatch},
		{"over payment", buyer, pay(buyer, price+1), id, registry.ErrPaymentMismatch},
		{"wrong receiver", buyer, ledger.Payment{From: buyer, To: seller, Amount: price}, id, registry.ErrPaymentMismatch},
		{"someone else's payment", other, pay(buyer, price), id, registry.ErrPaymentMismatch},
		{"unfunded buyer", other, pay(other, price), id, ledger.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.market.BuyCredit(f.ctx, tt.caller, tt.payment, tt.token)
			assert.ErrorIs(t, err, tt.want)

			assert.Equal(t, uint64(5_000_000), f.balance(buyer))
			assert.Zero(t, f.balance(seller))
			assert.Zero(t, f.balance(admin))
			assert.Equal(t, uint64(1), f.holding(id, market))
			stats, err := f.market.GetStats(f.ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.Trades)
		})
	}

	require.NoError(t, f.market.BuyCredit(f.ctx, buyer, pay(buyer, price), id))
	err := f.market.BuyCredit(f.ctx, buyer, pay(buyer, price), id)
	assert.ErrorIs(t, err, registry.ErrNotActive)
	assert.Equal(t, uint64(4_000_000), f.balance(buyer), "second buy charged nothing")

	stats, err := f.market.GetStats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Trades)
}

func TestZeroFeeSkipsAdminPayout(t *testing.T) {
	f := newFixture(t, 0)
	id := f.mint(seller)
	f.fund(buyer, price)
	f.list(id, seller)

	require.NoError(t, f.market.BuyCredit(f.ctx, buyer, pay(buyer, price), id))
	assert.Equal(t, uint64(price), f.balance(seller))
	assert.Zero(t, f.balance(admin))
}

func TestSettlementRollsBackWhenInnerFeeUnpaid(t *testing.T) {
	f := newFixture(t, 250, ledger.WithMinFee(1_000))
	id := f.mint(seller)
	f.fund(seller, 10_000)
	f.fund(buyer, 2_000_000)
	f.list(id, seller)
	sellerBefore := f.balance(seller)

	// The escrow account holds exactly the buyer's payment, so it cannot
	// cover the fee on its own payouts.
	err := f.market.BuyCredit(f.ctx, buyer, pay(buyer, price), id)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	assert.Equal(t, uint64(2_000_000), f.balance(buyer))
	assert.Equal(t, sellerBefore, f.balance(seller))
	assert.Zero(t, f.balance(admin))
	assert.Equal(t, uint64(1), f.holding(id, market))
	l, err := f.market.GetListing(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, l.Active)

	f.fund(market, 3_000)
	require.NoError(t, f.market.BuyCredit(f.ctx, buyer, pay(buyer, price), id))
	assert.Equal(t, uint64(1), f.holding(id, buyer))
	assert.Zero(t, f.balance(market), "three inner effects consumed the float")
}

func TestConcurrentBuysSettleOnce(t *testing.T) {
	f := newFixture(t, 250)
	id := f.mint(seller)
	f.list(id, seller)

	buyers := []ledger.Address{"B1", "B2", "B3", "B4", "B5", "B6", "B7", "B8"}
	for _, b := range buyers {
		f.fund(b, price)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(buyers))
	for i, b := range buyers {
		wg.Add(1)
		go func(i int, b ledger.Address) {
			defer wg.Done()
			errs[i] = f.market.BuyCredit(f.ctx, b, pay(b, price), id)
		}(i, b)
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		if err == nil {
			wins++
			assert.Equal(t, uint64(1), f.holding(id, buyers[i]))
			continue
		}
		assert.ErrorIs(t, err, registry.ErrNotActive)
		assert.Equal(t, uint64(price), f.balance(buyers[i]))
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, uint64(975_000), f.balance(seller))
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t, 250)
	id := f.mint(seller)
	f.list(id, seller)

	err := f.market.CancelListing(f.ctx, seller, id+100)
	assert.ErrorIs(t, err, registry.ErrNotFound)

	err = f.market.CancelListing(f.ctx, other, id)
	assert.ErrorIs(t, err, registry.ErrUnauthorized)

	require.NoError(t, f.market.CancelListing(f.ctx, seller, id))
	assert.Equal(t, uint64(1), f.holding(id, seller))

	l, err := f.market.GetListing(f.ctx, id)
	require.NoError(t, err)
	assert.False(t, l.Active)
	assert.Equal(t, StatusCancelled, l.Status)

	err = f.market.CancelListing(f.ctx, seller, id)
	assert.ErrorIs(t, err, registry.ErrNotActive)
	err = f.market.CancelListing(f.ctx, other, id)
	assert.ErrorIs(t, err, registry.ErrUnauthorized, "seller check precedes the active check")

	f.fund(buyer, price)
	err = f.market.BuyCredit(f.ctx, buyer, pay(buyer, price), id)
	assert.ErrorIs(t, err, registry.ErrNotActive, "a cancelled listing cannot be bought")
}

func TestSoldListingCannotBeCancelled(t *testing.T) {
	f := newFixture(t, 250)
	id := f.mint(seller)
	f.fund(buyer, price)
	f.list(id, seller)
	require.NoError(t, f.market.BuyCredit(f.ctx, buyer, pay(buyer, price), id))

	err := f.market.CancelListing(f.ctx, seller, id)
	assert.ErrorIs(t, err, registry.ErrNotActive)
	assert.Equal(t, uint64(1), f.holding(id, buyer))
}

func TestRelistAfterSale(t *testing.T) {
	f := newFixture(t, 250)
	id := f.mint(seller)
	f.fund(buyer, price)
	f.list(id, seller)
	require.NoError(t, f.market.BuyCredit(f.ctx, buyer, pay(buyer, price), id))

	require.NoError(t, f.market.ListCredit(f.ctx, buyer, deposit(id, buyer), terms(id, 2*price)))
	l, err := f.market.GetListing(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, l.Active)
	assert.Equal(t, buyer, l.Seller)
	assert.Equal(t, uint64(2*price), l.Price)
	assert.Empty(t, l.Buyer)
	assert.Nil(t, l.ClosedAt)

	f.fund(other, 2*price)
	require.NoError(t, f.market.BuyCredit(f.ctx, other, pay(other, 2*price), id))

	stats, err := f.market.GetStats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Trades)
	assert.Equal(t, uint64(3), stats.Volume)
}

func TestStatsRequireMarketplace(t *testing.T) {
	fresh := New(ledger.New(memory.New()), market, zaptest.NewLogger(t), nil)
	_, err := fresh.GetStats(context.Background())
	assert.ErrorIs(t, err, registry.ErrNotInitialized)
}
