package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sessionguard/authgate/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	sendTimeout    = 10 * time.Second
)

// ErrNotRunning is returned by Send before Start or after shutdown.
var ErrNotRunning = errors.New("queue: dispatcher not running")

// Dispatcher hands magic links to a downstream LinkSender from a fixed set of
// workers. Deliveries are sharded on the recipient email, so links for one
// recipient go out in the order they were requested.
type Dispatcher struct {
	workers []chan ports.MagicLinkDelivery
	next    ports.LinkSender
	log     zerolog.Logger

	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, next ports.LinkSender, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.MagicLinkDelivery, numWorkers),
		next:    next,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.MagicLinkDelivery, channelBuffer)
	}
	return d
}

// Start launches the workers. They drain their queues and stop once ctx is
// cancelled; Wait blocks until they have.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		d.running = false
		for _, ch := range d.workers {
			close(ch)
		}
		d.mu.Unlock()
	}()
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Send enqueues a delivery on the worker owning its recipient. It blocks only
// while that worker's buffer is full, and gives up when ctx is done.
func (d *Dispatcher) Send(ctx context.Context, delivery ports.MagicLinkDelivery) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return ErrNotRunning
	}

	select {
	case d.workers[d.shardIndex(delivery.Email)] <- delivery:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shardIndex maps a recipient deterministically to a worker index.
func (d *Dispatcher) shardIndex(email string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(email))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.MagicLinkDelivery) {
	defer d.wg.Done()

	// Queued links are still delivered during shutdown.
	deliverCtx := context.WithoutCancel(ctx)
	for delivery := range ch {
		sendCtx, cancel := context.WithTimeout(deliverCtx, sendTimeout)
		if err := d.next.Send(sendCtx, delivery); err != nil {
			d.log.Error().Err(err).
				Int("worker_id", id).
				Msg("magic link delivery failed")
		}
		cancel()
	}
}
