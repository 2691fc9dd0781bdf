// Package dispatch orchestrates the publish pipeline: gate check, request
// normalization, sequence-token resolution, an immediate caller ack, and
// exactly one background send per accepted request.
//
// The ack/delivery split is the point of the whole system: a slow or
// unreachable relay must never stall the calling agent.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teh-hippo/tiny-ntfy-mcp/internal/eventbus"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/gate"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/ntfy"
	rtsup "github.com/teh-hippo/tiny-ntfy-mcp/internal/runtime/supervisor"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/sequence"
	logx "github.com/teh-hippo/tiny-ntfy-mcp/pkg/logx"
)

// Config tunes the background delivery machinery.
type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int
}

type job struct {
	msg        ntfy.Message
	session    string
	sequenceID string
	messageID  string
}

// Service implements the publish pipeline. Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	gate   *gate.Gate
	reg    *sequence.Registry
	client *ntfy.Client
	bus    eventbus.Bus

	limiter *rate.Limiter

	accepting bool
	queue     chan job
	sup       *rtsup.Supervisor
	stopDone  chan struct{} // non-nil while stopping
	sendWG    sync.WaitGroup
	workerWG  sync.WaitGroup

	smu   sync.Mutex
	stats Stats
}

func New(cfg Config, g *gate.Gate, reg *sequence.Registry, client *ntfy.Client, bus eventbus.Bus, log logx.Logger) *Service {
	// Defaults
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 200
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log,
		cfg:    cfg,
		gate:   g,
		reg:    reg,
		client: client,
		bus:    bus,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Start brings up the delivery workers. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx, s.log.With(logx.String("comp", "dispatch")))
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < s.cfg.Workers; i++ {
		s.workerWG.Add(1)
		sup.Go(fmt.Sprintf("worker.%d", i), func(c context.Context) {
			defer s.workerWG.Done()
			s.workerLoop(c, q)
		})
	}
	if s.bus != nil {
		sup.Go("bus.log", s.logLoop)
	}
}

// Stop stops intake and drains the queue best-effort until ctx expires.
// In-flight deliveries past the deadline are abandoned; delivery is
// best-effort by contract.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	// Shutdown happens asynchronously so callers can time out without leaking state.
	go func() {
		defer close(done)
		// Wait for in-flight enqueues, close the queue so workers can
		// drain, then cancel the bus log loop once delivery is done.
		s.sendWG.Wait()
		close(q)
		s.workerWG.Wait()
		sup.Cancel()
		sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Publish runs steps 1-4 of the pipeline synchronously and schedules the
// send. The returned Ack is complete before any network I/O starts.
func (s *Service) Publish(args map[string]any) (Ack, error) {
	// 1. Gate. Suppression is a normal outcome, not an error, and causes
	// no validation, registry or queue side effects.
	if !s.gate.Enabled() {
		return Ack{Suppressed: true, Reason: "disabled"}, nil
	}

	// 2. Validate and normalize, failing fast before any mutation.
	req, err := parseRequest(args)
	if err != nil {
		return Ack{}, err
	}

	// 3. Resolve the sequencing token (serialized per registry).
	seqID, _ := s.reg.RecordOrGenerate(req.Session, req.SequenceID, req.Update)

	// 4. Build the ack; 5. schedule exactly one send.
	j := job{
		msg:        buildMessage(req, seqID),
		session:    req.Session,
		sequenceID: seqID,
		messageID:  uuid.NewString(),
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return Ack{}, ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- j:
	default:
		s.noteDropped()
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: EventDropped, Data: DeliveryEvent{
				Session: j.session, MessageID: j.messageID, SequenceID: j.sequenceID, Error: ErrQueueFull.Error(),
			}})
		}
		return Ack{}, ErrQueueFull
	}

	return Ack{
		Session:    req.Session,
		Enqueued:   true,
		SequenceID: seqID,
		MessageID:  j.messageID,
		QueueSize:  len(q),
	}, nil
}

// Stats returns a point-in-time snapshot of the delivery counters.
func (s *Service) Stats() Stats {
	s.smu.Lock()
	st := s.stats
	s.smu.Unlock()

	s.mu.Lock()
	if s.queue != nil {
		st.QueueSize = len(s.queue)
	}
	s.mu.Unlock()
	return st
}

func (s *Service) noteDropped() {
	s.smu.Lock()
	s.stats.Dropped++
	s.smu.Unlock()
}
