package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// recordTimeout bounds a single click write so a stalled store cannot pin
// a worker.
const recordTimeout = 5 * time.Second

type clickJob struct {
	code      string
	ip        string
	userAgent string
	referer   string
}

// ClickRecorder persists clicks off the request path through a bounded
// worker pool. Enqueue never blocks and errors are never surfaced to the
// requester; click counting is advisory analytics, not billing.
type ClickRecorder struct {
	store Store
	jobs  chan clickJob
	wg    sync.WaitGroup
	log   zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewClickRecorder starts a recorder with the given number of workers and
// queue capacity.
func NewClickRecorder(store Store, workers, queueSize int, log zerolog.Logger) *ClickRecorder {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &ClickRecorder{
		store: store,
		jobs:  make(chan clickJob, queueSize),
		log:   log,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Enqueue schedules a click for recording. When the queue is full the
// click is dropped and logged; the redirect already went out.
func (r *ClickRecorder) Enqueue(code, ip, userAgent, referer string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.jobs <- clickJob{code: code, ip: ip, userAgent: userAgent, referer: referer}:
	default:
		r.log.Warn().Str("code", code).Msg("click queue full, dropping click")
	}
}

func (r *ClickRecorder) worker() {
	defer r.wg.Done()
	for job := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := r.store.RecordClick(ctx, job.code, job.ip, job.userAgent, job.referer); err != nil {
			r.log.Error().Err(err).Str("code", job.code).Msg("failed to record click")
		}
		cancel()
	}
}

// Close stops accepting clicks and drains the queue
func (r *ClickRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.jobs)
	r.wg.Wait()
}
