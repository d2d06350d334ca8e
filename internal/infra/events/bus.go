package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/telemetry"
)

// ProgressBus fans pipeline progress events out to subscribers. Publishing
// never blocks: a subscriber that cannot keep up loses events and is expected
// to resync from the job store. Sequence numbers are assigned here, at
// publish time, and are monotonic per job even when stages interleave with
// reconnect chatter.
type ProgressBus struct {
	logger *zap.Logger
	buffer int

	mu     sync.RWMutex
	perJob map[string]map[chan domain.ProgressEvent]struct{}
	global map[chan domain.ProgressEvent]struct{}

	seqMu sync.Mutex
	seq   map[string]uint64

	dropped atomic.Uint64
}

type Options struct {
	Logger *zap.Logger
	// Buffer is the per-subscriber channel depth. Zero means the default.
	Buffer int
}

func NewProgressBus(opts Options) *ProgressBus {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = domain.DefaultEventBuffer
	}
	return &ProgressBus{
		logger: logger,
		buffer: buffer,
		perJob: make(map[string]map[chan domain.ProgressEvent]struct{}),
		global: make(map[chan domain.ProgressEvent]struct{}),
		seq:    make(map[string]uint64),
	}
}

// Publish stamps the event with its per-job sequence and delivers it to every
// matching subscriber that has room.
func (b *ProgressBus) Publish(event domain.ProgressEvent) domain.ProgressEvent {
	if b == nil {
		return event
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Sequence = b.nextSequence(event.JobID)

	// The read lock is held across the sends: unsubscribe closes channels
	// under the write lock, so a channel can never close mid-send.
	b.mu.RLock()
	for ch := range b.perJob[event.JobID] {
		b.deliver(ch, event)
	}
	for ch := range b.global {
		b.deliver(ch, event)
	}
	b.mu.RUnlock()
	return event
}

func (b *ProgressBus) deliver(ch chan domain.ProgressEvent, event domain.ProgressEvent) {
	select {
	case ch <- event:
	default:
		b.dropped.Add(1)
		b.logger.Debug("subscriber lagging, event dropped",
			telemetry.EventField(telemetry.EventDroppedEvent),
			telemetry.JobField(event.JobID),
			zap.Uint64("sequence", event.Sequence),
		)
	}
}

// Subscribe returns a channel of events for one job, or for every job when
// jobID is empty. The channel closes when ctx is done.
func (b *ProgressBus) Subscribe(ctx context.Context, jobID string) <-chan domain.ProgressEvent {
	if b == nil {
		ch := make(chan domain.ProgressEvent)
		close(ch)
		return ch
	}
	ch := make(chan domain.ProgressEvent, b.buffer)

	b.mu.Lock()
	if jobID == "" {
		b.global[ch] = struct{}{}
	} else {
		if b.perJob[jobID] == nil {
			b.perJob[jobID] = make(map[chan domain.ProgressEvent]struct{})
		}
		b.perJob[jobID][ch] = struct{}{}
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if jobID == "" {
			delete(b.global, ch)
		} else if b.perJob[jobID] != nil {
			delete(b.perJob[jobID], ch)
			if len(b.perJob[jobID]) == 0 {
				delete(b.perJob, jobID)
			}
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Sequence returns the last sequence assigned for the job.
func (b *ProgressBus) Sequence(jobID string) uint64 {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	return b.seq[jobID]
}

// Dropped returns the total number of events discarded for slow subscribers.
func (b *ProgressBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Forget releases the sequence counter of a finished job.
func (b *ProgressBus) Forget(jobID string) {
	b.seqMu.Lock()
	delete(b.seq, jobID)
	b.seqMu.Unlock()
}

func (b *ProgressBus) nextSequence(jobID string) uint64 {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	b.seq[jobID]++
	return b.seq[jobID]
}
