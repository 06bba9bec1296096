package reports

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"carbon-scribe/credit-registry/internal/issuance"
	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/ledger/memory"
	"carbon-scribe/credit-registry/internal/marketplace"
	"carbon-scribe/credit-registry/internal/registry"
	"carbon-scribe/credit-registry/internal/retirement"
)

type fakeIssuance struct{ total uint64 }

func (f fakeIssuance) GetTotalIssued(context.Context) (uint64, error) { return f.total, nil }

type mockIssuance struct {
	mock.Mock
}

func (m *mockIssuance) GetTotalIssued(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

type fakeMarket struct{ stats marketplace.Stats }

func (f fakeMarket) GetStats(context.Context) (marketplace.Stats, error) { return f.stats, nil }

type fakeRetirement struct{ stats retirement.GlobalStats }

func (f fakeRetirement) GetGlobalStats(context.Context) (retirement.GlobalStats, error) {
	return f.stats, nil
}

type memUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memUploader) Upload(_ context.Context, bucket, key string, body io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[bucket+"/"+key] = data
	return "mem://" + bucket + "/" + key, nil
}

func fakeCollector(t *testing.T) *Collector {
	c := NewCollector(
		fakeIssuance{total: 3},
		fakeMarket{stats: marketplace.Stats{Volume: 2, VolumeMicro: 2_500_000, Trades: 2, FeeBps: 250}},
		fakeRetirement{stats: retirement.GlobalStats{TotalTonnesRetired: 100, TotalRetirements: 1}},
		zaptest.NewLogger(t),
	)
	c.now = func() time.Time { return time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC) }
	t.Cleanup(c.Close)
	return c
}

func TestCollectorReadsLiveRegistries(t *testing.T) {
	ctx := context.Background()
	host := ledger.New(memory.New())
	logger := zaptest.NewLogger(t)
	iss := issuance.New(host, "ISSUANCE_APP", logger, nil)
	market := marketplace.New(host, "MARKET_APP", logger, nil)
	ret := retirement.New(host, "RETIREMENT_APP", logger, nil)
	require.NoError(t, iss.CreateRegistry(ctx, "ADMIN"))
	require.NoError(t, market.CreateMarketplace(ctx, "ADMIN", 100))
	require.NoError(t, ret.CreateRegistry(ctx, "ADMIN"))

	c := NewCollector(iss, market, ret, logger)
	defer c.Close()
	snap, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.TotalCreditsIssued)
	assert.Equal(t, uint64(100), snap.Marketplace.FeeBps)
	assert.False(t, snap.TakenAt.IsZero())
}

func TestCollectorFailsIfAnyRegistryFails(t *testing.T) {
	iss := &mockIssuance{}
	iss.On("GetTotalIssued", mock.Anything).Return(uint64(0), registry.ErrNotInitialized).Once()
	c := NewCollector(iss, fakeMarket{}, fakeRetirement{}, zaptest.NewLogger(t))
	defer c.Close()

	_, err := c.Collect(context.Background())
	assert.ErrorIs(t, err, registry.ErrNotInitialized)
	iss.AssertExpectations(t)
}

func TestRenderWorkbook(t *testing.T) {
	snap, err := fakeCollector(t).Collect(context.Background())
	require.NoError(t, err)

	data, err := RenderWorkbook(snap)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3+len(snap.Rows()))
	assert.Equal(t, []string{"Snapshot taken at", "2024-03-01 06:00:00 UTC"}, rows[0])
	assert.Equal(t, []string{"Registry", "Metric", "Value"}, rows[2])
	assert.Equal(t, []string{"issuance", "total_credits_issued", "3"}, rows[3])
	assert.Equal(t, []string{"retirement", "total_tonnes_retired", "100"}, rows[8])
}

func TestRunOnceUploadsDailyWorkbook(t *testing.T) {
	up := &memUploader{}
	s := NewScheduler(fakeCollector(t), up, "registry-reports", time.Minute, zaptest.NewLogger(t))

	loc, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mem://registry-reports/stats/2024-03-01/registry-stats.xlsx", loc)
	assert.Contains(t, up.objects, "registry-reports/stats/2024-03-01/registry-stats.xlsx")
}

type failingUploader struct{}

func (failingUploader) Upload(context.Context, string, string, io.Reader, string) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestRunOnceReportsUploadFailure(t *testing.T) {
	s := NewScheduler(fakeCollector(t), failingUploader{}, "b", time.Minute, zaptest.NewLogger(t))
	_, err := s.RunOnce(context.Background())
	assert.EqualError(t, err, "bucket unavailable")
}

func TestSchedulerLifecycle(t *testing.T) {
	s := NewScheduler(fakeCollector(t), &memUploader{}, "b", time.Minute, zaptest.NewLogger(t))
	assert.Error(t, s.Schedule("not a cron spec"))
	require.NoError(t, s.Schedule("0 6 * * *"))

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	s.Stop()
	s.Stop()
}

func TestObjectKey(t *testing.T) {
	day := time.Date(2024, 12, 31, 23, 0, 0, 0, time.FixedZone("X", -3*3600))
	assert.Equal(t, "stats/2025-01-01/registry-stats.xlsx", ObjectKey(day))
}
