package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/courier/internal/pkg/logger"
)

const (
	// DefaultPollInterval is how often the poller scans for pending messages.
	DefaultPollInterval = 5 * time.Second

	// DefaultBatchLimit caps how many messages one poll cycle claims.
	DefaultBatchLimit = 100
)

// Dispatcher drains pending messages. Satisfied by dispatch.Service.
type Dispatcher interface {
	ProcessPendingMessages(ctx context.Context, limit int) (int, error)
}

// Poller periodically drains queued and retry-eligible messages through
// the dispatch service. Multiple poller instances can run against the
// same database; per-message leases keep them from double-sending.
type Poller struct {
	dispatcher   Dispatcher
	workerID     string
	pollInterval time.Duration
	batchLimit   int

	// Stats
	cyclesRun         int64
	messagesProcessed int64
	errorCount        int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewPoller creates a poller with default interval and batch limit.
func NewPoller(dispatcher Dispatcher) *Poller {
	hostname, _ := os.Hostname()
	return &Poller{
		dispatcher:   dispatcher,
		workerID:     fmt.Sprintf("poller-%s-%d", hostname, time.Now().UnixNano()%10000),
		pollInterval: DefaultPollInterval,
		batchLimit:   DefaultBatchLimit,
	}
}

// SetPollInterval overrides the polling interval.
func (p *Poller) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		p.pollInterval = interval
	}
}

// SetBatchLimit overrides how many messages one cycle may claim.
func (p *Poller) SetBatchLimit(limit int) {
	if limit > 0 {
		p.batchLimit = limit
	}
}

// WorkerID returns this poller's identity, used in logs.
func (p *Poller) WorkerID() string { return p.workerID }

// Start begins the polling loop.
func (p *Poller) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	logger.Info("message poller starting",
		"worker_id", p.workerID,
		"poll_interval", p.pollInterval.String(),
		"batch_limit", fmt.Sprintf("%d", p.batchLimit))

	p.wg.Add(1)
	go p.pollLoop()

	return nil
}

// Stop gracefully stops the poller and waits for the in-flight cycle.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	logger.Info("message poller stopped",
		"worker_id", p.workerID,
		"cycles", fmt.Sprintf("%d", atomic.LoadInt64(&p.cyclesRun)),
		"messages_processed", fmt.Sprintf("%d", atomic.LoadInt64(&p.messagesProcessed)))
}

// IsRunning reports whether the poll loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Stats returns cycle, message and error counters.
func (p *Poller) Stats() (cycles, processed, errors int64) {
	return atomic.LoadInt64(&p.cyclesRun),
		atomic.LoadInt64(&p.messagesProcessed),
		atomic.LoadInt64(&p.errorCount)
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	// Drain once immediately so a restart does not wait a full interval.
	p.runCycle()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.runCycle()
		}
	}
}

func (p *Poller) runCycle() {
	atomic.AddInt64(&p.cyclesRun, 1)

	processed, err := p.dispatcher.ProcessPendingMessages(p.ctx, p.batchLimit)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		if p.ctx.Err() == nil {
			logger.Error("poll cycle failed", "worker_id", p.workerID, "error", err.Error())
		}
		return
	}

	atomic.AddInt64(&p.messagesProcessed, int64(processed))
	if processed > 0 {
		logger.Info("poll cycle complete",
			"worker_id", p.workerID,
			"processed", fmt.Sprintf("%d", processed))
	}
}
