package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: updates held while sinks are busy (default 1024).
//   - MaxBatchSize: flush once this many updates queue (default 100).
//   - MaxBatchWait: longest time the first queued update waits for a flush (default 100ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize   int
	MaxBatchSize int
	MaxBatchWait time.Duration
	SinkTimeout  time.Duration
	BaseContext  context.Context
	Logger       *zap.Logger
}

const (
	defaultBufferSize   = 1024
	defaultMaxBatchSize = 100
	defaultMaxBatchWait = 100 * time.Millisecond
	defaultSinkTimeout  = 10 * time.Second
	dropLogInterval     = 5 * time.Second
)

// Hub queues dashboard updates and hands them to sinks in arrival order.
// Emit never blocks. When the queue is full the hub sheds updates that did
// not change the dashboard first, then the oldest ones, so the newest view
// always reaches the sinks.
type Hub struct {
	cfg    Config
	sinks  []Sink
	logger *zap.Logger

	mu      sync.Mutex
	pending []Update
	closed  bool

	wake     chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	dropped  atomic.Int64
	unlogged atomic.Int64
	dropLog  rateLimiter

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the background delivery goroutine for sinks. The returned
// Hub is immediately ready to accept updates.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		logger:  logger,
		pending: make([]Update, 0, min(cfg.BufferSize, cfg.MaxBatchSize)),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		dropLog: rateLimiter{interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Emit queues u for delivery.
func (h *Hub) Emit(u Update) {
	if h == nil {
		return
	}
	if err := u.Validate(); err != nil {
		h.logger.Debug("discarding invalid update", zap.Error(err))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	shed := h.push(u)
	h.mu.Unlock()

	if shed {
		h.dropped.Add(1)
		h.unlogged.Add(1)
		if h.dropLog.Allow(time.Now()) {
			h.logger.Warn("dashboard updates shed due to backpressure",
				zap.Int64("dropped", h.unlogged.Swap(0)),
				zap.Int64("dropped_total", h.dropped.Load()),
			)
		}
	}
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// push appends u, evicting one queued update when the buffer is full. It
// reports whether anything was evicted. Callers hold h.mu.
func (h *Hub) push(u Update) bool {
	if len(h.pending) < h.cfg.BufferSize {
		h.pending = append(h.pending, u)
		return false
	}
	if !u.Changed() && !anyUnchanged(h.pending) {
		return true
	}
	victim := 0
	for i, queued := range h.pending {
		if !queued.Changed() {
			victim = i
			break
		}
	}
	copy(h.pending[victim:], h.pending[victim+1:])
	h.pending[len(h.pending)-1] = u
	return true
}

func anyUnchanged(updates []Update) bool {
	for _, u := range updates {
		if !u.Changed() {
			return true
		}
	}
	return false
}

// Dropped reports how many updates were shed since the hub started.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// Close delivers queued updates, closes the sinks and waits for the
// background goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("update hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	timer := time.NewTimer(h.cfg.MaxBatchWait)
	timer.Stop()
	timerActive := false
	for {
		select {
		case <-h.wake:
			if rest := h.deliver(false); rest == 0 {
				stopTimer(timer, &timerActive)
			} else if !timerActive {
				timer.Reset(h.cfg.MaxBatchWait)
				timerActive = true
			}
		case <-timer.C:
			timerActive = false
			h.deliver(true)
		case <-h.stopCh:
			stopTimer(timer, &timerActive)
			h.deliver(true)
			h.closeSinks()
			return
		}
	}
}

// deliver flushes full batches, and any partial remainder when all is set,
// until nothing more is ready. It returns how many updates stay queued.
func (h *Hub) deliver(all bool) int {
	for {
		batch, rest := h.take(all)
		if len(batch) == 0 {
			return rest
		}
		h.flush(batch)
	}
}

func (h *Hub) take(all bool) ([]Update, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.pending)
	if n == 0 || (!all && n < h.cfg.MaxBatchSize) {
		return nil, n
	}
	k := min(n, h.cfg.MaxBatchSize)
	batch := append([]Update(nil), h.pending[:k]...)
	h.pending = append(h.pending[:0], h.pending[k:]...)
	return batch, len(h.pending)
}

func stopTimer(timer *time.Timer, timerActive *bool) {
	if !*timerActive {
		return
	}
	timer.Stop()
	*timerActive = false
}

func (h *Hub) flush(batch []Update) {
	baseCtx := h.cfg.BaseContext
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(baseCtx, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("update sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("update sink close failed", zap.Error(err))
		}
	}
}

type rateLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (r *rateLimiter) Allow(now time.Time) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := r.last.Load()
	if nano-last < r.interval.Nanoseconds() {
		return false
	}
	return r.last.CompareAndSwap(last, nano)
}
