// Package worker provides an asynchronous worker pool that generates and
// stores embeddings for freshly saved memory records.
//
// The pool decouples embedding generation from the save path: a save returns
// as soon as the record row is committed, and the vector is filled in later
// (or left pending for the retry manager when the model is unavailable).
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/retry"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 60 * time.Second
)

// Job is one record waiting for its embedding.
type Job struct {
	Record *memory.Record

	// Text is the full embedding text for Record.
	Text string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Attempter runs the embedding attempt for each job. Required.
	Attempter *retry.Attempter

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds a single embedding attempt (defaults to 60s).
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool processes embedding jobs asynchronously.
type Pool struct {
	attempter *retry.Attempter
	timeout   time.Duration
	queue     chan Job
	wg        sync.WaitGroup
	logger    *slog.Logger

	// mu guards closed and sends on queue
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c Config) (*Pool, error) {
	if c.Attempter == nil {
		return nil, errors.New("attempter is required")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		attempter: c.Attempter,
		timeout:   c.JobTimeout,
		queue:     make(chan Job, c.QueueSize),
		logger:    logger.OrNop(c.Logger),
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a job. It returns false when the queue is full or the pool
// is closed; the record then stays pending and the retry manager picks it up.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("job not queued, pool closed", "id", job.Record.ID)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("embedding job queued", "id", job.Record.ID)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped", "id", job.Record.ID)
		return false
	}
}

// Close stops accepting jobs and waits for queued jobs to drain. It is safe
// to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("embedding worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("embedding worker stopped", "worker_id", id)
}

// processJob runs one attempt. Errors are logged by the attempter and never
// surface to the saver.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	state, err := p.attempter.Attempt(ctx, job.Record, job.Text)
	if err != nil {
		return
	}
	p.logger.Info("memory embedded", "id", job.Record.ID, "status", state.Status)
}
