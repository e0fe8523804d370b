package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
	"github.com/audiophile/account-core/internal/pkg/metrics"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// Dispatcher routes security events to a fixed set of workers using
// consistent hashing on the account email, which keeps each account's audit
// trail in order. Publishing never blocks: a full shard drops the event.
type Dispatcher struct {
	workers []chan domain.SecurityEvent
	repo    ports.SecurityEventRepository
	log     zerolog.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, repo ports.SecurityEventRepository, log zerolog.Logger) *Dispatcher {
	return newDispatcher(numWorkers, channelBuffer, repo, log)
}

func newDispatcher(numWorkers, buffer int, repo ports.SecurityEventRepository, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan domain.SecurityEvent, numWorkers),
		repo:    repo,
		log:     log.With().Str("component", "security_events").Logger(),
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.SecurityEvent, buffer)
	}
	return d
}

// Start launches all worker goroutines. Workers run until Shutdown closes
// their channels; ctx is used for the store writes.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Publish implements ports.SecurityEventPublisher.
func (d *Dispatcher) Publish(event domain.SecurityEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.SecurityEventsTotal.WithLabelValues("dropped").Inc()
		return
	}

	idx := d.shardIndex(event.Email)
	select {
	case d.workers[idx] <- event:
		metrics.SecurityEventsQueueDepth.WithLabelValues(strconv.Itoa(idx)).Inc()
	default:
		metrics.SecurityEventsTotal.WithLabelValues("dropped").Inc()
		d.log.Warn().
			Str("type", string(event.Type)).
			Int("worker_id", idx).
			Msg("security event dropped, shard full")
	}
}

// Shutdown stops accepting events and waits for queued ones to be stored.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, ch := range d.workers {
		close(ch)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shardIndex maps an email deterministically to a worker index.
func (d *Dispatcher) shardIndex(email string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(email))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.SecurityEvent) {
	defer d.wg.Done()
	depth := metrics.SecurityEventsQueueDepth.WithLabelValues(strconv.Itoa(id))

	for event := range ch {
		depth.Dec()
		if err := d.repo.InsertSecurityEvent(ctx, &event); err != nil {
			metrics.SecurityEventsTotal.WithLabelValues("failed").Inc()
			d.log.Error().Err(err).
				Str("type", string(event.Type)).
				Str("account_id", event.AccountID).
				Int("worker_id", id).
				Msg("security event store failed")
			continue
		}
		metrics.SecurityEventsTotal.WithLabelValues("stored").Inc()
	}
}
