package dispatch

import (
	"context"
	"time"

	"github.com/teh-hippo/tiny-ntfy-mcp/internal/eventbus"
	logx "github.com/teh-hippo/tiny-ntfy-mcp/pkg/logx"
)

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, j)
		}
	}
}

// deliver performs one send and records the outcome. Failures degrade to
// diagnostics only: the caller already holds its ack, and there is no
// retry because a late replay could reorder edits on a sequenced
// notification.
func (s *Service) deliver(ctx context.Context, j job) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	now := time.Now()
	res, err := s.client.Send(ctx, j.msg)

	ev := DeliveryEvent{
		Session:    j.session,
		MessageID:  j.messageID,
		SequenceID: j.sequenceID,
		Status:     res.StatusCode,
		At:         now,
	}

	s.smu.Lock()
	switch {
	case err != nil:
		s.stats.SentErr++
		s.stats.LastErrorAt = now
		s.stats.LastError = err.Error()
	case res.DryRun:
		s.stats.DryRun++
		s.stats.LastSuccessAt = now
	default:
		s.stats.SentOK++
		s.stats.LastSuccessAt = now
	}
	s.smu.Unlock()

	if s.bus == nil {
		return
	}
	switch {
	case err != nil:
		ev.Error = err.Error()
		s.bus.Publish(eventbus.Event{Type: EventFailed, Time: now, Data: ev})
	case res.DryRun:
		s.bus.Publish(eventbus.Event{Type: EventDryRun, Time: now, Data: ev})
	default:
		s.bus.Publish(eventbus.Event{Type: EventSent, Time: now, Data: ev})
	}
}

// logLoop mirrors bus events into the diagnostic log at the configured
// verbosity. This is the only place delivery failures become visible.
func (s *Service) logLoop(ctx context.Context) {
	ch, unsub := s.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			d, _ := ev.Data.(DeliveryEvent)
			fields := []logx.Field{
				logx.String("session", d.Session),
				logx.String("message_id", d.MessageID),
				logx.String("sequence_id", d.SequenceID),
			}
			switch ev.Type {
			case EventSent:
				s.log.Debug("notification delivered", append(fields, logx.Int("status", d.Status))...)
			case EventDryRun:
				s.log.Debug("notification dry-run", fields...)
			case EventFailed:
				s.log.Warn("notification delivery failed", append(fields, logx.String("err", d.Error))...)
			case EventDropped:
				s.log.Warn("notification dropped (queue full)", fields...)
			}
		}
	}
}
