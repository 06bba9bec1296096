package reports

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"carbon-scribe/credit-registry/pkg/storage"
)

// ObjectKey is where the workbook for day is stored
func ObjectKey(day time.Time) string {
	return fmt.Sprintf("stats/%s/registry-stats.xlsx", day.UTC().Format("2006-01-02"))
}

// Scheduler runs the collect, render and upload job on a cron schedule
type Scheduler struct {
	cron      *cron.Cron
	collector *Collector
	uploader  storage.Uploader
	bucket    string
	timeout   time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a stopped scheduler
func NewScheduler(collector *Collector, uploader storage.Uploader, bucket string, timeout time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		collector: collector,
		uploader:  uploader,
		bucket:    bucket,
		timeout:   timeout,
		logger:    logger,
	}
}

// Schedule registers the job under a standard five field cron spec
func (s *Scheduler) Schedule(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runJob); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.logger.Info("Stats report scheduled", zap.String("cron", spec))
	return nil
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}

func (s *Scheduler) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Stats report failed", zap.Error(err))
	}
}

// RunOnce collects, renders and uploads one workbook and returns its location
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	start := time.Now()
	snap, err := s.collector.Collect(ctx)
	if err != nil {
		return "", err
	}
	data, err := RenderWorkbook(snap)
	if err != nil {
		return "", err
	}
	key := ObjectKey(snap.TakenAt)
	loc, err := s.uploader.Upload(ctx, s.bucket, key, bytes.NewReader(data), WorkbookContentType)
	if err != nil {
		return "", err
	}
	s.logger.Info("Stats report delivered",
		zap.String("location", loc),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return loc, nil
}
