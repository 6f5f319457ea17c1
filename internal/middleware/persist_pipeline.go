package middleware

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"TradeDesk/internal/domain/models"
	domrepo "TradeDesk/internal/domain/repository"
	applogger "TradeDesk/pkg/logger"
	"TradeDesk/pkg/metrics"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	ProcessBatch(ctx context.Context, recs []*models.PriceRecord) error
}

// PersistPipeline sits between relay sessions and the storage backend.
// It validates and throttles records, buffers them, and hands them to Proc in batches from one worker.
// A batch is flushed when it reaches batchSize or when flushEvery elapses, whichever comes first.
// Enqueue never blocks: a full buffer drops the record.
type PersistPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	log     *applogger.Logger

	maxRPS  int
	bufSize int
	timeout time.Duration
	bufCh   chan *models.PriceRecord

	batchSize  int
	flushEvery time.Duration

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	lastSeen map[string]time.Time // per-symbol last accepted time
	now      func() time.Time

	dropped   atomic.Uint64
	throttled atomic.Uint64
}

type PipelineOption func(*PersistPipeline)

// WithMaxRPS sets the max records per second per symbol. 0 disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *PersistPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the buffer between Enqueue and the worker.
func WithBufferSize(n int) PipelineOption {
	return func(p *PersistPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatch sets the max records per Proc call and the flush interval for partial batches.
func WithBatch(size int, flushEvery time.Duration) PipelineOption {
	return func(p *PersistPipeline) {
		if size > 0 {
			p.batchSize = size
		}
		if flushEvery > 0 {
			p.flushEvery = flushEvery
		}
	}
}

// WithProcessTimeout bounds a single Proc call.
func WithProcessTimeout(d time.Duration) PipelineOption {
	return func(p *PersistPipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPersistPipeline creates a new pipeline. Call Start to run the worker.
func NewPersistPipeline(proc Proc, m domrepo.Metrics, l *applogger.Logger, opts ...PipelineOption) *PersistPipeline {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	p := &PersistPipeline{
		proc:     proc,
		metrics:  m,
		log:      l.With(applogger.String("component", "persist_pipeline")),
		maxRPS:   20,
		bufSize:  2000,
		timeout:  5 * time.Second,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,

		batchSize:  100,
		flushEvery: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.PriceRecord, p.bufSize)
	return p
}

// Start launches the background worker. Calling it twice is a no-op.
func (p *PersistPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run(ctx)
	p.log.Info("persist pipeline started",
		applogger.Int("buffer", p.bufSize),
		applogger.Int("max_rps_per_symbol", p.maxRPS),
		applogger.Int("batch_size", p.batchSize),
		applogger.Duration("flush_every", p.flushEvery),
	)
}

// Stop stops the worker and waits for it to exit.
// The batch the worker holds is flushed; records still in the buffer are discarded.
func (p *PersistPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopCh)
	<-p.doneCh
	p.log.Info("persist pipeline stopped",
		applogger.Int("pending", len(p.bufCh)),
		applogger.Int64("dropped", int64(p.dropped.Load())),
	)
}

func (p *PersistPipeline) run(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.flushEvery)
	defer ticker.Stop()

	batch := make([]*models.PriceRecord, 0, p.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		p.process(ctx, batch)
		batch = make([]*models.PriceRecord, 0, p.batchSize)
	}

	for {
		select {
		case <-p.stopCh:
			flush(context.Background())
			return
		case <-ctx.Done():
			flush(context.Background())
			return
		case r := <-p.bufCh:
			batch = append(batch, r)
			if len(batch) >= p.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (p *PersistPipeline) process(ctx context.Context, batch []*models.PriceRecord) {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.proc.ProcessBatch(cctx, batch); err != nil {
		p.metrics.RecordError("persist_process")
		p.log.Warn("persist failed",
			applogger.Int("records", len(batch)),
			applogger.String("first_symbol", batch[0].Symbol),
			applogger.Error(err),
		)
		return
	}
	p.metrics.RecordLatency("persist_process", time.Since(start).Seconds())
}

// Enqueue validates, throttles and buffers r without blocking.
// The pipeline keeps r, so callers must not mutate it afterwards.
func (p *PersistPipeline) Enqueue(r *models.PriceRecord) {
	if err := validateRecord(r); err != nil {
		p.metrics.RecordError("persist_validate")
		p.log.Debug("record rejected", applogger.Error(err))
		return
	}
	if !p.allow(r.Symbol) {
		p.throttled.Add(1)
		p.metrics.RecordError("persist_throttle")
		return
	}

	select {
	case p.bufCh <- r:
	default:
		p.dropped.Add(1)
		p.metrics.RecordError("persist_buffer_full")
	}
}

// Dropped returns the number of records dropped because the buffer was full.
func (p *PersistPipeline) Dropped() uint64 { return p.dropped.Load() }

// Throttled returns the number of records rejected by the per-symbol throttle.
func (p *PersistPipeline) Throttled() uint64 { return p.throttled.Load() }

// Pending returns the number of buffered records.
func (p *PersistPipeline) Pending() int { return len(p.bufCh) }

func validateRecord(r *models.PriceRecord) error {
	if r == nil {
		return fmt.Errorf("record nil")
	}
	if r.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if r.CurrentPrice < 0 {
		return fmt.Errorf("negative price")
	}
	return nil
}

// allow admits at most maxRPS records per second per symbol by spacing accepted records.
func (p *PersistPipeline) allow(symbol string) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	last, ok := p.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}

var _ domrepo.PriceSink = (*PersistPipeline)(nil)
