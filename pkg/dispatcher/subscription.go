package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/contract-jobs/pkg/entity"
)

// Event is one step of a job's lifecycle. State is active, completed or
// failed; exactly one terminal event is delivered per subscription.
type Event struct {
	JobID    string          `json:"job_id"`
	State    entity.JobState `json:"state"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Category string          `json:"category,omitempty"`
}

// Terminal reports whether e ends the subscription
func (e Event) Terminal() bool {
	return e.State == entity.JobCompleted || e.State == entity.JobFailed
}

// Subscription receives the events of one job
type Subscription struct {
	JobID string

	d          *Dispatcher
	events     chan Event
	activeSent bool
	closed     bool
}

// Events is closed after the terminal event or after Close
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close detaches the listener. The job itself keeps running.
func (s *Subscription) Close() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.detach(s)
}

func (d *Dispatcher) subscribe(jobID string) *Subscription {
	sub := &Subscription{
		JobID:  jobID,
		d:      d,
		events: make(chan Event, subscriptionBuffer),
	}
	d.mu.Lock()
	d.subs[jobID] = sub
	d.mu.Unlock()
	return sub
}

// detach must be called with d.mu held
func (d *Dispatcher) detach(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.events)
	if d.subs[sub.JobID] == sub {
		delete(d.subs, sub.JobID)
	}
}

// publish delivers e to the job's subscriber, if any.
func (d *Dispatcher) publish(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub, ok := d.subs[e.JobID]
	if !ok || sub.closed {
		return
	}
	if e.State == entity.JobActive {
		if sub.activeSent {
			return
		}
		sub.activeSent = true
	}

	select {
	case sub.events <- e:
	default:
		d.logger.Warn("Dropping job event for slow subscriber",
			zap.String("job_id", e.JobID),
			zap.String("state", string(e.State)))
	}
	if e.Terminal() {
		d.detach(sub)
	}
}

// watch follows subscribed jobs through the queue so that jobs claimed by
// another process still reach their local subscriber.
func (d *Dispatcher) watch(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.pollSubscriptions(ctx)
		}
	}
}

func (d *Dispatcher) pollSubscriptions(ctx context.Context) {
	d.mu.Lock()
	ids := make([]string, 0, len(d.subs))
	for id := range d.subs {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		job, err := d.queue.GetJob(ctx, id)
		if err != nil {
			continue
		}
		switch job.State {
		case entity.JobActive:
			d.publish(Event{JobID: id, State: entity.JobActive, Payload: job.Payload})
		case entity.JobCompleted:
			d.publish(Event{JobID: id, State: entity.JobActive, Payload: job.Payload})
			d.publish(Event{JobID: id, State: entity.JobCompleted, Result: job.Result})
		case entity.JobFailed:
			d.publish(Event{JobID: id, State: entity.JobActive, Payload: job.Payload})
			d.publish(Event{JobID: id, State: entity.JobFailed, Error: job.Error, Category: job.ErrorCategory})
		}
	}
}
