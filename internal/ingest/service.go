// LOCATION: internal/ingest/service.go
//
// Sample ingestion pipeline. Appends are validated against the catalog
// and the model's indexing scheme, then batched into multi-row store
// inserts. Samples for staged models additionally spawn a buffer entry
// so the lifecycle pipeline picks them up.

package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/xtxerr/depot/internal/catalog"
	"github.com/xtxerr/depot/internal/codec"
	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/logging"
	"github.com/xtxerr/depot/internal/scheme"
	"github.com/xtxerr/depot/internal/store"
)

var log = logging.Component("ingest")

// Config tunes the ingestion batcher.
type Config struct {
	// BatchSize is the number of pending samples that triggers a flush.
	BatchSize int

	// FlushInterval flushes partial batches on a timer.
	FlushInterval time.Duration

	// Clock drives the flush timer. Defaults to the wall clock; tests
	// substitute a fake to trigger timed flushes deterministically.
	Clock clockwork.Clock
}

// DefaultConfig returns the default ingestion configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
	}
}

// Service batches validated appends into the store.
type Service struct {
	config  Config
	store   *store.Store
	catalog catalog.Catalog

	mu      sync.Mutex
	pending []*store.Sample
	staged  []*store.BufferEntry

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	stats Stats

	flushCh chan struct{}
}

// Stats holds ingestion statistics.
type Stats struct {
	SamplesReceived  atomic.Int64
	SamplesStored    atomic.Int64
	EntriesStaged    atomic.Int64
	Conflicts        atomic.Int64
	BatchesProcessed atomic.Int64
	FlushesCompleted atomic.Int64
	Errors           atomic.Int64
}

// New creates an ingestion service.
func New(cfg Config, s *store.Store, c catalog.Catalog) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config:  cfg,
		store:   s,
		catalog: c,
		ctx:     ctx,
		cancel:  cancel,
		flushCh: make(chan struct{}, 1),
	}
}

// Start starts the background flush worker.
func (s *Service) Start() error {
	if s.running.Load() {
		return fmt.Errorf("service already running")
	}
	s.running.Store(true)

	s.wg.Add(1)
	go s.flushWorker()

	return nil
}

// Stop drains pending samples and stops the flush worker.
func (s *Service) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	s.cancel()
	s.wg.Wait()

	return s.flush(context.Background())
}

// Request is one append: a value tuple at a position of one
// (device, model) pair.
type Request struct {
	DeviceID uuid.UUID
	ModelID  uuid.UUID
	Position scheme.Position
	Values   []codec.Value
}

// Append validates and enqueues one sample. The write becomes durable
// at the next flush.
func (s *Service) Append(ctx context.Context, req Request) error {
	return s.AppendBatch(ctx, []Request{req})
}

// AppendBatch validates and enqueues a batch of samples. Validation is
// all-or-nothing: one bad request rejects the whole batch before
// anything is enqueued.
func (s *Service) AppendBatch(ctx context.Context, reqs []Request) error {
	if !s.running.Load() {
		return errors.ErrClosed
	}
	if len(reqs) == 0 {
		return nil
	}

	s.stats.SamplesReceived.Add(int64(len(reqs)))

	samples := make([]*store.Sample, 0, len(reqs))
	var entries []*store.BufferEntry
	for i := range reqs {
		sample, staged, err := s.prepare(ctx, &reqs[i])
		if err != nil {
			s.stats.Errors.Add(1)
			return fmt.Errorf("request %d: %w", i, err)
		}
		samples = append(samples, sample)
		if staged {
			entries = append(entries, &store.BufferEntry{
				DeviceID: sample.DeviceID,
				ModelID:  sample.ModelID,
				Position: sample.Position,
				Payload:  sample.Payload,
			})
		}
	}

	s.mu.Lock()
	s.pending = append(s.pending, samples...)
	s.staged = append(s.staged, entries...)
	full := len(s.pending) >= s.config.BatchSize
	s.mu.Unlock()

	if full {
		s.ForceFlush()
	}
	return nil
}

// prepare validates one request against the catalog and encodes its
// payload.
func (s *Service) prepare(ctx context.Context, req *Request) (*store.Sample, bool, error) {
	if _, err := s.catalog.GetDevice(ctx, req.DeviceID); err != nil {
		if errors.IsNotFound(err) {
			return nil, false, errors.Wrapf(errors.ErrUnknownReference, "device %s", req.DeviceID)
		}
		return nil, false, err
	}
	model, err := s.catalog.GetModel(ctx, req.ModelID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, false, errors.Wrapf(errors.ErrUnknownReference, "model %s", req.ModelID)
		}
		return nil, false, err
	}

	sc := model.Scheme()
	if err := sc.Validate(req.Position); err != nil {
		return nil, false, err
	}

	if len(req.Values) != len(model.Fields) {
		return nil, false, errors.NewInvalidValue("values", len(req.Values),
			fmt.Sprintf("model has %d fields", len(model.Fields)))
	}
	for i, v := range req.Values {
		if v.IsNull() {
			continue
		}
		if v.Type != model.Fields[i] {
			return nil, false, errors.Wrapf(errors.ErrTypeMismatch,
				"field %d is %s, got %s", i, model.Fields[i], v.Type)
		}
	}

	return &store.Sample{
		DeviceID: req.DeviceID,
		ModelID:  req.ModelID,
		Position: sc.Canonical(req.Position),
		Payload:  codec.Pack(req.Values),
	}, model.Staged, nil
}

// flushWorker periodically flushes partial batches.
func (s *Service) flushWorker() {
	defer s.wg.Done()

	ticker := s.config.Clock.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
			s.flushLogged()
		case <-s.flushCh:
			s.flushLogged()
		}
	}
}

func (s *Service) flushLogged() {
	if err := s.flush(context.Background()); err != nil {
		s.stats.Errors.Add(1)
		log.Error("flush failed", "error", err)
	}
}

// flush writes everything pending to the store. A duplicate position
// in the batch falls back to per-sample inserts so one conflict does
// not sink its neighbors.
func (s *Service) flush(ctx context.Context) error {
	s.mu.Lock()
	samples := s.pending
	entries := s.staged
	s.pending = nil
	s.staged = nil
	s.mu.Unlock()

	if len(samples) == 0 && len(entries) == 0 {
		return nil
	}

	if len(samples) > 0 {
		if err := s.store.InsertSamplesBatch(ctx, samples); err != nil {
			if !errors.Is(err, errors.ErrConflict) {
				return fmt.Errorf("insert samples: %w", err)
			}
			s.insertIndividually(ctx, samples)
		} else {
			s.stats.SamplesStored.Add(int64(len(samples)))
		}
		s.stats.BatchesProcessed.Add(1)
	}

	for _, e := range entries {
		id, err := s.store.InsertBuffer(ctx, e)
		if err != nil {
			return fmt.Errorf("insert buffer entry: %w", err)
		}
		e.ID = id
		s.stats.EntriesStaged.Add(1)
	}

	s.stats.FlushesCompleted.Add(1)
	return nil
}

// insertIndividually retries a conflicted batch sample by sample,
// counting duplicates instead of failing.
func (s *Service) insertIndividually(ctx context.Context, samples []*store.Sample) {
	for _, sample := range samples {
		err := s.store.InsertSample(ctx, sample)
		switch {
		case err == nil:
			s.stats.SamplesStored.Add(1)
		case errors.Is(err, errors.ErrConflict):
			s.stats.Conflicts.Add(1)
			log.Debug("duplicate position dropped",
				"device", sample.DeviceID,
				"model", sample.ModelID)
		default:
			s.stats.Errors.Add(1)
			log.Error("sample insert failed", "error", err)
		}
	}
}

// ForceFlush triggers an immediate flush.
func (s *Service) ForceFlush() {
	select {
	case s.flushCh <- struct{}{}:
	default:
		// Flush already pending
	}
}

// Snapshot returns current statistics.
func (s *Service) Snapshot() ServiceStats {
	s.mu.Lock()
	pending := len(s.pending)
	s.mu.Unlock()

	return ServiceStats{
		Running:          s.running.Load(),
		SamplesReceived:  s.stats.SamplesReceived.Load(),
		SamplesStored:    s.stats.SamplesStored.Load(),
		EntriesStaged:    s.stats.EntriesStaged.Load(),
		Conflicts:        s.stats.Conflicts.Load(),
		BatchesProcessed: s.stats.BatchesProcessed.Load(),
		FlushesCompleted: s.stats.FlushesCompleted.Load(),
		Errors:           s.stats.Errors.Load(),
		Pending:          pending,
	}
}

// ServiceStats holds combined service statistics.
type ServiceStats struct {
	Running          bool
	SamplesReceived  int64
	SamplesStored    int64
	EntriesStaged    int64
	Conflicts        int64
	BatchesProcessed int64
	FlushesCompleted int64
	Errors           int64
	Pending          int
}

// IsRunning returns whether the service is running.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}
