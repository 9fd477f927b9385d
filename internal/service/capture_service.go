// internal/service/capture_service.go
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"comm-debugger/internal/config"
	"comm-debugger/internal/model"
	"comm-debugger/internal/repository"
	"comm-debugger/internal/utils"
)

const captureWriteTimeout = 5 * time.Second

// CaptureStats reports the capture writer counters
type CaptureStats struct {
	Queued  int    `json:"queued"`
	Saved   uint64 `json:"saved"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// CaptureService persists transfer and error events in the background.
// Handle never blocks the dispatcher: when the queue is full the event is dropped.
type CaptureService struct {
	repo          repository.CaptureRepository
	queue         chan *model.CaptureRecord
	batchSize     int
	flushInterval time.Duration
	retention     time.Duration
	logger        *utils.ServiceLogger

	saved   atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewCaptureService creates a capture writer
func NewCaptureService(repo repository.CaptureRepository, cfg *config.CaptureConfig, logger *zap.Logger) *CaptureService {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	return &CaptureService{
		repo:          repo,
		queue:         make(chan *model.CaptureRecord, queueSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		retention:     cfg.Retention,
		logger:        utils.NewServiceLogger(logger, "capture-service"),
		done:          make(chan struct{}),
	}
}

// Handle queues transfer and error events. It is registered as a dispatcher handler.
func (cs *CaptureService) Handle(ev model.Event) {
	record, ok := model.NewCaptureRecord(ev)
	if !ok {
		return
	}

	select {
	case <-cs.done:
		return
	default:
	}

	select {
	case cs.queue <- &record:
	default:
		if n := cs.dropped.Inc(); n == 1 || n%100 == 0 {
			cs.logger.Warn("Capture queue full, dropping events",
				zap.Uint64("dropped_total", n),
				zap.Int("queue_size", cap(cs.queue)),
			)
		}
	}
}

// Start launches the background writer
func (cs *CaptureService) Start(ctx context.Context) {
	cs.startOnce.Do(func() {
		cs.wg.Add(1)
		go cs.run(ctx)

		if cs.retention > 0 {
			cs.wg.Add(1)
			go cs.pruneLoop(ctx)
		}

		cs.logger.Info("Capture writer started",
			zap.Int("batch_size", cs.batchSize),
			zap.Duration("flush_interval", cs.flushInterval),
			zap.Duration("retention", cs.retention),
		)
	})
}

// Stop flushes queued records and stops the writer
func (cs *CaptureService) Stop() {
	cs.stopOnce.Do(func() {
		close(cs.done)
	})
	cs.wg.Wait()
}

func (cs *CaptureService) run(ctx context.Context) {
	defer cs.wg.Done()

	ticker := time.NewTicker(cs.flushInterval)
	defer ticker.Stop()

	batch := make([]*model.CaptureRecord, 0, cs.batchSize)

	for {
		select {
		case record := <-cs.queue:
			batch = append(batch, record)
			if len(batch) >= cs.batchSize {
				batch = cs.flush(batch)
			}
		case <-ticker.C:
			batch = cs.flush(batch)
		case <-cs.done:
			cs.drain(batch)
			return
		case <-ctx.Done():
			cs.drain(batch)
			return
		}
	}
}

func (cs *CaptureService) drain(batch []*model.CaptureRecord) {
	for {
		select {
		case record := <-cs.queue:
			batch = append(batch, record)
			if len(batch) >= cs.batchSize {
				batch = cs.flush(batch)
			}
		default:
			cs.flush(batch)
			return
		}
	}
}

func (cs *CaptureService) flush(batch []*model.CaptureRecord) []*model.CaptureRecord {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), captureWriteTimeout)
	defer cancel()

	start := time.Now()
	err := cs.repo.SaveBatch(ctx, batch)
	cs.logger.LogDatabaseQuery("COPY captures", []interface{}{len(batch)}, time.Since(start), err)

	if err != nil {
		cs.failed.Add(uint64(len(batch)))
	} else {
		cs.saved.Add(uint64(len(batch)))
	}

	return batch[:0]
}

func (cs *CaptureService) pruneLoop(ctx context.Context) {
	defer cs.wg.Done()

	interval := cs.retention / 24
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pruneCtx, cancel := context.WithTimeout(ctx, captureWriteTimeout)
			if _, err := cs.Prune(pruneCtx, cs.retention); err != nil {
				cs.logger.Warn("Capture pruning failed", zap.Error(err))
			}
			cancel()
		case <-cs.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Prune deletes captures older than the given age
func (cs *CaptureService) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	return cs.repo.DeleteOlderThan(ctx, time.Now().Add(-olderThan))
}

// Recent lists persisted captures, newest first
func (cs *CaptureService) Recent(ctx context.Context, filter *repository.CaptureFilter) ([]*model.CaptureRecord, error) {
	records, err := cs.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*model.CaptureRecord{}
	}
	return records, nil
}

// Stats returns the writer counters
func (cs *CaptureService) Stats() CaptureStats {
	return CaptureStats{
		Queued:  len(cs.queue),
		Saved:   cs.saved.Load(),
		Dropped: cs.dropped.Load(),
		Failed:  cs.failed.Load(),
	}
}
