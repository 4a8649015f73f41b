// LOCATION: internal/worker/manager.go
//
// Stage workers for the buffer lifecycle. The manager polls the store
// for entries per stage, runs the stage's processor on a bounded pool,
// and advances each entry with a compare-and-swap on its current
// status. Losing the swap means another worker already moved the entry;
// the loser drops its claim.

package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/lifecycle"
	"github.com/xtxerr/depot/internal/logging"
	"github.com/xtxerr/depot/internal/store"
)

var log = logging.Component("worker")

// Mode selects which pipeline variant buffered entries take after the
// convert stage.
type Mode int

const (
	// ModeGateway runs the gateway-side analyze and transfer stages.
	ModeGateway Mode = iota
	// ModeServer runs the server-side analyze and transfer stages.
	ModeServer
)

func (m Mode) String() string {
	if m == ModeServer {
		return "server"
	}
	return "gateway"
}

// ParseMode parses a pipeline mode string.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "gateway", "":
		return ModeGateway, nil
	case "server":
		return ModeServer, nil
	default:
		return ModeGateway, fmt.Errorf("unknown pipeline mode %q", s)
	}
}

// Processor does the work of one stage on one entry.
type Processor interface {
	Process(ctx context.Context, e *store.BufferEntry) error
}

// BatchProcessor is implemented by processors that want the whole claim
// in one call, like the backup exporter.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, entries []*store.BufferEntry) error
}

// Config tunes the stage workers.
type Config struct {
	// Mode selects gateway or server stage variants.
	Mode Mode

	// PollInterval is how often each stage scans for claimable entries.
	PollInterval time.Duration

	// BatchSize caps how many entries one scan claims per stage.
	BatchSize int

	// Concurrency is the worker count per stage pool.
	Concurrency int

	// StuckAttempts flags entries that failed at least this many times.
	StuckAttempts int

	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeGateway,
		PollInterval:  time.Second,
		BatchSize:     100,
		Concurrency:   4,
		StuckAttempts: 5,
	}
}

// StuckFunc is called with entries that keep failing, so an operator
// can inspect and retry or drop them.
type StuckFunc func(entries []*store.BufferEntry)

// Manager drives buffered entries through the lifecycle stages.
type Manager struct {
	cfg   Config
	store *store.Store
	stats *lifecycle.StageStats
	stuck StuckFunc

	procs map[lifecycle.Status]Processor
	pools map[lifecycle.Status]pond.Pool

	mu       sync.Mutex
	inflight map[int64]bool

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a stage worker manager. Processors are registered
// with Register before Start.
func NewManager(cfg Config, s *store.Store) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.StuckAttempts <= 0 {
		cfg.StuckAttempts = DefaultConfig().StuckAttempts
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &Manager{
		cfg:      cfg,
		store:    s,
		stats:    lifecycle.NewStageStats(),
		procs:    make(map[lifecycle.Status]Processor),
		pools:    make(map[lifecycle.Status]pond.Pool),
		inflight: make(map[int64]bool),
	}
}

// Register installs the processor for one stage. Stages without a
// processor advance entries without doing work.
func (m *Manager) Register(stage lifecycle.Status, p Processor) {
	m.procs[stage] = p
}

// OnStuck installs the reporter for entries that keep failing.
func (m *Manager) OnStuck(fn StuckFunc) {
	m.stuck = fn
}

// target returns the stage an entry in the given status advances to.
func (m *Manager) target(s lifecycle.Status) (lifecycle.Status, bool) {
	switch s {
	case lifecycle.StatusDefault:
		return lifecycle.StatusConvert, true
	case lifecycle.StatusConvert:
		if m.cfg.Mode == ModeServer {
			return lifecycle.StatusAnalyzeServer, true
		}
		return lifecycle.StatusAnalyzeGateway, true
	case lifecycle.StatusAnalyzeGateway, lifecycle.StatusAnalyzeServer:
		if m.cfg.Mode == ModeServer {
			return lifecycle.StatusTransferServer, true
		}
		return lifecycle.StatusTransferGateway, true
	case lifecycle.StatusTransferGateway, lifecycle.StatusTransferServer:
		return lifecycle.StatusBackup, true
	case lifecycle.StatusBackup:
		return lifecycle.StatusDelete, true
	default:
		return lifecycle.StatusError, false
	}
}

// activeStages lists the statuses this manager scans in its mode.
func (m *Manager) activeStages() []lifecycle.Status {
	stages := []lifecycle.Status{
		lifecycle.StatusDefault,
		lifecycle.StatusConvert,
		lifecycle.StatusBackup,
	}
	if m.cfg.Mode == ModeServer {
		return append(stages, lifecycle.StatusAnalyzeServer, lifecycle.StatusTransferServer)
	}
	return append(stages, lifecycle.StatusAnalyzeGateway, lifecycle.StatusTransferGateway)
}

// Start launches the poll loop and the per-stage pools.
func (m *Manager) Start() error {
	if m.running {
		return fmt.Errorf("manager already running")
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(context.Background())

	for _, stage := range m.activeStages() {
		m.pools[stage] = pond.NewPool(m.cfg.Concurrency)
	}

	m.wg.Add(1)
	go m.pollLoop()

	log.Info("stage workers started",
		"mode", m.cfg.Mode.String(),
		"stages", len(m.pools),
		"concurrency", m.cfg.Concurrency)
	return nil
}

// Stop drains the pools and stops polling.
func (m *Manager) Stop() {
	if !m.running {
		return
	}
	m.running = false
	m.cancel()
	m.wg.Wait()

	for _, pool := range m.pools {
		pool.StopAndWait()
	}
	log.Info("stage workers stopped")
}

func (m *Manager) pollLoop() {
	defer m.wg.Done()

	ticker := m.cfg.Clock.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.Chan():
			m.Tick(m.ctx)
		}
	}
}

// Tick runs one scan over every active stage. Exported so tests and
// callers without a running poll loop can drive the pipeline manually.
func (m *Manager) Tick(ctx context.Context) {
	for _, stage := range m.activeStages() {
		m.scanStage(ctx, stage)
	}
	m.reportStuck(ctx)
}

// scanStage claims up to BatchSize entries in one status and hands them
// to the stage pool.
func (m *Manager) scanStage(ctx context.Context, stage lifecycle.Status) {
	entries, err := m.store.ListBuffersByStatus(ctx, stage, m.cfg.BatchSize)
	if err != nil {
		log.Error("stage scan failed", "stage", stage.String(), "error", err)
		return
	}

	claimed := m.claim(entries)
	if len(claimed) == 0 {
		return
	}

	if bp, ok := m.procs[stage].(BatchProcessor); ok {
		m.pools[stage].Submit(func() {
			defer m.release(claimed)
			m.runBatch(ctx, stage, bp, claimed)
		})
		return
	}

	for _, e := range claimed {
		e := e
		m.pools[stage].Submit(func() {
			defer m.release([]*store.BufferEntry{e})
			m.runOne(ctx, stage, e)
		})
	}
}

// claim filters out entries already handed to a pool.
func (m *Manager) claim(entries []*store.BufferEntry) []*store.BufferEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	claimed := entries[:0]
	for _, e := range entries {
		if m.inflight[e.ID] {
			continue
		}
		m.inflight[e.ID] = true
		claimed = append(claimed, e)
	}
	return claimed
}

func (m *Manager) release(entries []*store.BufferEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		delete(m.inflight, e.ID)
	}
}

// runOne processes a single entry and advances it.
func (m *Manager) runOne(ctx context.Context, stage lifecycle.Status, e *store.BufferEntry) {
	started := m.cfg.Clock.Now()

	if p, ok := m.procs[stage]; ok {
		if err := p.Process(ctx, e); err != nil {
			m.fail(ctx, stage, e, err)
			return
		}
	}
	m.advance(ctx, stage, e, started)
}

// runBatch processes a claim in one call, then advances each entry.
func (m *Manager) runBatch(ctx context.Context, stage lifecycle.Status, p BatchProcessor, entries []*store.BufferEntry) {
	started := m.cfg.Clock.Now()

	if err := p.ProcessBatch(ctx, entries); err != nil {
		for _, e := range entries {
			m.fail(ctx, stage, e, err)
		}
		return
	}
	for _, e := range entries {
		m.advance(ctx, stage, e, started)
	}
}

// advance commits the stage transition. A lost swap is another worker's
// win, not an error.
func (m *Manager) advance(ctx context.Context, stage lifecycle.Status, e *store.BufferEntry, started time.Time) {
	to, ok := m.target(stage)
	if !ok {
		return
	}

	op := func() error {
		err := m.store.AdvanceBuffer(ctx, e.ID, stage, to)
		if err == nil {
			return nil
		}
		if errors.Is(err, errors.ErrStaleState) || errors.IsNotFound(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, errors.ErrStaleState) || errors.IsNotFound(err) {
			log.Debug("entry claimed elsewhere", "id", e.ID, "stage", stage.String())
			return
		}
		m.fail(ctx, stage, e, err)
		return
	}

	m.stats.RecordSuccess(stage, m.cfg.Clock.Since(started))
	log.Debug("entry advanced",
		"id", e.ID,
		"from", stage.String(),
		"to", to.String())
}

// fail parks the entry in the error stage, remembering where it was.
func (m *Manager) fail(ctx context.Context, stage lifecycle.Status, e *store.BufferEntry, cause error) {
	m.stats.RecordFailure(stage)
	log.Warn("stage failed",
		"id", e.ID,
		"stage", stage.String(),
		"error", cause)

	if err := m.store.AdvanceBuffer(ctx, e.ID, stage, lifecycle.StatusError); err != nil {
		if errors.Is(err, errors.ErrStaleState) || errors.IsNotFound(err) {
			return
		}
		log.Error("parking entry failed", "id", e.ID, "error", err)
	}
}

// Retry moves one parked entry back to the stage it failed at.
func (m *Manager) Retry(ctx context.Context, id int64) (lifecycle.Status, error) {
	return m.store.RetryBuffer(ctx, id)
}

// reportStuck surfaces entries whose attempt count crossed the
// threshold.
func (m *Manager) reportStuck(ctx context.Context) {
	if m.stuck == nil {
		return
	}
	entries, err := m.store.ListStuckBuffers(ctx, m.cfg.StuckAttempts)
	if err != nil {
		log.Error("stuck scan failed", "error", err)
		return
	}
	if len(entries) > 0 {
		m.stuck(entries)
	}
}

// Stats exposes per-stage throughput and latency.
func (m *Manager) Stats() *lifecycle.StageStats {
	return m.stats
}
