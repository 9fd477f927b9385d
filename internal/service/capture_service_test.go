// internal/service/capture_service_test.go
package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"comm-debugger/internal/config"
	"comm-debugger/internal/model"
	"comm-debugger/internal/repository"
)

type fakeCaptureRepo struct {
	mutex   sync.Mutex
	saved   []*model.CaptureRecord
	batches int
	saveErr error
	pruned  time.Time
}

func (f *fakeCaptureRepo) Save(ctx context.Context, record *model.CaptureRecord) error {
	return f.SaveBatch(ctx, []*model.CaptureRecord{record})
}

func (f *fakeCaptureRepo) SaveBatch(ctx context.Context, records []*model.CaptureRecord) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.batches++
	f.saved = append(f.saved, records...)
	return nil
}

func (f *fakeCaptureRepo) List(ctx context.Context, filter *repository.CaptureFilter) ([]*model.CaptureRecord, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	limit := filter.EffectiveLimit()
	var out []*model.CaptureRecord
	for i := len(f.saved) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.saved[i])
	}
	return out, nil
}

func (f *fakeCaptureRepo) Count(ctx context.Context) (int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return int64(len(f.saved)), nil
}

func (f *fakeCaptureRepo) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.pruned = olderThan
	return 0, nil
}

func (f *fakeCaptureRepo) savedCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.saved)
}

func TestCaptureServicePersistsTransfersAndErrors(t *testing.T) {
	repo := &fakeCaptureRepo{}
	cs := NewCaptureService(repo, &config.CaptureConfig{QueueSize: 16, BatchSize: 2, FlushInterval: time.Hour}, zaptest.NewLogger(t))
	cs.Start(context.Background())

	cs.Handle(transferEvent(model.DirectionSent, "abc"))
	cs.Handle(model.NewStateEnvelope(model.StateEvent{TransportLabel: "SerialPort", State: model.StateOpen}))
	cs.Handle(model.NewErrorEnvelope(model.ErrorEvent{
		TransportLabel: "SerialPort",
		Severity:       model.SeverityNonFatal,
		Op:             model.OpSend,
		Code:           "WRITE_ERROR",
		Description:    "write failed",
	}))
	cs.Handle(transferEvent(model.DirectionReceived, "x"))

	cs.Stop()

	if got := repo.savedCount(); got != 3 {
		t.Fatalf("saved %d records, want 3 (state events are not captured)", got)
	}

	records, err := cs.Recent(context.Background(), &repository.CaptureFilter{Limit: 2})
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 || records[0].Direction != model.DirectionReceived || records[1].Code != "WRITE_ERROR" {
		t.Errorf("Recent() = %+v", records)
	}

	if stats := cs.Stats(); stats.Saved != 3 || stats.Dropped != 0 || stats.Failed != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestCaptureServiceDropsWhenFull(t *testing.T) {
	repo := &fakeCaptureRepo{}
	cs := NewCaptureService(repo, &config.CaptureConfig{QueueSize: 2, BatchSize: 10, FlushInterval: time.Hour}, zaptest.NewLogger(t))

	// not started: nothing drains the queue
	for i := 0; i < 5; i++ {
		cs.Handle(transferEvent(model.DirectionSent, "x"))
	}

	stats := cs.Stats()
	if stats.Queued != 2 || stats.Dropped != 3 {
		t.Errorf("Stats() = %+v, want 2 queued and 3 dropped", stats)
	}

	cs.Start(context.Background())
	cs.Stop()

	if got := repo.savedCount(); got != 2 {
		t.Errorf("saved %d records after stop, want 2", got)
	}
}

func TestCaptureServiceCountsFailures(t *testing.T) {
	repo := &fakeCaptureRepo{saveErr: errors.New("connection refused")}
	cs := NewCaptureService(repo, &config.CaptureConfig{QueueSize: 4, BatchSize: 4, FlushInterval: time.Hour}, zaptest.NewLogger(t))
	cs.Start(context.Background())

	cs.Handle(transferEvent(model.DirectionSent, "x"))
	cs.Stop()

	if stats := cs.Stats(); stats.Failed != 1 || stats.Saved != 0 {
		t.Errorf("Stats() = %+v", stats)
	}

	// events after stop are ignored
	cs.Handle(transferEvent(model.DirectionSent, "late"))
	if stats := cs.Stats(); stats.Queued != 0 {
		t.Errorf("queued after stop = %d", stats.Queued)
	}
}

func TestCaptureServicePrune(t *testing.T) {
	repo := &fakeCaptureRepo{}
	cs := NewCaptureService(repo, &config.CaptureConfig{}, zaptest.NewLogger(t))

	before := time.Now().Add(-time.Hour)
	if _, err := cs.Prune(context.Background(), time.Hour); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if repo.pruned.Before(before.Add(-time.Second)) || repo.pruned.After(time.Now()) {
		t.Errorf("pruned cutoff = %v, want about %v", repo.pruned, before)
	}
}
