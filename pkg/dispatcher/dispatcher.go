// Package dispatcher queues jobs durably, runs them on a worker pool and
// streams per-job lifecycle events back to the caller that enqueued them.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainsafe/contract-jobs/internal/metrics"
	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
	"github.com/chainsafe/contract-jobs/pkg/config"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/store"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrUnknownKind = errors.New("unknown job kind")
)

// subscriptionBuffer covers one Active and one terminal event with room to spare.
const subscriptionBuffer = 8

// Queue is the durable job queue
//
//go:generate mockery --name Queue --output mocks --outpkg mocks --filename mock_queue.go --with-expecter
type Queue interface {
	CreateJob(ctx context.Context, job *entity.Job) error
	GetJob(ctx context.Context, id string) (*entity.Job, error)
	ClaimJob(ctx context.Context) (*entity.Job, error)
	FinishJob(ctx context.Context, id string, state entity.JobState, result []byte, errMsg, category string) error
}

// HandlerFunc executes one job. The returned value is stored as the job
// result in JSON form.
type HandlerFunc func(ctx context.Context, job *entity.Job) (any, error)

// Dispatcher owns the worker pool and the per-job subscriptions
type Dispatcher struct {
	queue    Queue
	cfg      config.QueueConfig
	logger   *zap.Logger
	handlers map[entity.Kind]HandlerFunc

	mu   sync.Mutex
	subs map[string]*Subscription

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a dispatcher. Handlers must be registered before Start.
func New(queue Queue, cfg config.QueueConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[entity.Kind]HandlerFunc),
		subs:     make(map[string]*Subscription),
		stopCh:   make(chan struct{}),
	}
}

// Register binds a handler to a job kind
func (d *Dispatcher) Register(kind entity.Kind, h HandlerFunc) {
	d.handlers[kind] = h
}

// Kinds returns the kinds with a registered handler
func (d *Dispatcher) Kinds() []entity.Kind {
	kinds := make([]entity.Kind, 0, len(d.handlers))
	for _, k := range entity.Kinds {
		if _, ok := d.handlers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Enqueue stores a new waiting job and returns a subscription to its
// events. The subscription is attached before the job becomes visible to
// workers, so no event is missed.
func (d *Dispatcher) Enqueue(ctx context.Context, kind entity.Kind, payload json.RawMessage) (*Subscription, error) {
	if _, ok := d.handlers[kind]; !ok {
		return nil, apperrors.BadRequestError(fmt.Errorf("%w: %s", ErrUnknownKind, kind), fmt.Sprintf("unknown job kind %q", kind))
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, apperrors.BadRequestError(errors.New("payload is not valid JSON"), "payload is not valid JSON")
	}

	job := &entity.Job{
		ID:      uuid.NewString(),
		Kind:    kind,
		State:   entity.JobWaiting,
		Payload: payload,
		RunAt:   time.Now().Add(d.cfg.InitialDelay),
	}
	sub := d.subscribe(job.ID)

	if err := d.queue.CreateJob(ctx, job); err != nil {
		sub.Close()
		return nil, apperrors.GeneralError(fmt.Errorf("failed to enqueue %s job: %w", kind, err))
	}

	metrics.JobsEnqueued.WithLabelValues(string(kind)).Inc()
	d.logger.Debug("Job enqueued", zap.String("job_id", job.ID), zap.String("kind", string(kind)))
	return sub, nil
}

// GetJob returns the stored state of a job
func (d *Dispatcher) GetJob(ctx context.Context, id string) (*entity.Job, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, apperrors.ResourceNotFoundError(ErrJobNotFound, "job not found")
	}
	job, err := d.queue.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ResourceNotFoundError(ErrJobNotFound, "job not found")
	}
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to get job %s: %w", id, err))
	}
	return job, nil
}

// Start launches the worker pool and the subscription watcher. Workers stop
// claiming new jobs when ctx is done or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.wg.Add(1)
	go d.watch(ctx)

	d.logger.Info("Dispatcher started",
		zap.Int("workers", d.cfg.Workers),
		zap.Duration("poll_interval", d.cfg.PollInterval))
}

// Stop stops claiming jobs and waits for in-flight jobs to finish
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
	d.logger.Info("Dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for !d.stopped(ctx) && d.processNext(ctx) {
		}
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) stopped(ctx context.Context) bool {
	select {
	case <-d.stopCh:
		return true
	default:
		return ctx.Err() != nil
	}
}

// processNext claims and runs one job. It reports whether a job was found.
func (d *Dispatcher) processNext(ctx context.Context) bool {
	job, err := d.queue.ClaimJob(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("Failed to claim job", zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("dispatcher", "claim").Inc()
		}
		return false
	}

	// in-flight jobs outlive shutdown, bounded by the job timeout
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.JobTimeout)
	defer cancel()
	d.run(jobCtx, job)
	return true
}

func (d *Dispatcher) run(ctx context.Context, job *entity.Job) {
	logger := d.logger.With(zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
	start := time.Now()

	d.publish(Event{JobID: job.ID, State: entity.JobActive, Payload: job.Payload})
	logger.Info("Job started", zap.Int("attempt", job.Attempts))

	result, err := d.invoke(ctx, job)
	var resultJSON []byte
	if err == nil && result != nil {
		if resultJSON, err = json.Marshal(result); err != nil {
			err = apperrors.GeneralError(fmt.Errorf("failed to encode job result: %w", err))
		}
	}

	metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())
	finishCtx := context.WithoutCancel(ctx)

	if err != nil {
		category := apperrors.CategoryOf(err).String()
		if ferr := d.queue.FinishJob(finishCtx, job.ID, entity.JobFailed, nil, err.Error(), category); ferr != nil {
			logger.Error("Failed to record job failure", zap.Error(ferr))
		}
		metrics.JobsTotal.WithLabelValues(string(job.Kind), string(entity.JobFailed)).Inc()
		logger.Warn("Job failed",
			zap.String("category", category),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		d.publish(Event{JobID: job.ID, State: entity.JobFailed, Error: err.Error(), Category: category})
		return
	}

	if ferr := d.queue.FinishJob(finishCtx, job.ID, entity.JobCompleted, resultJSON, "", ""); ferr != nil {
		logger.Error("Failed to record job completion", zap.Error(ferr))
	}
	metrics.JobsTotal.WithLabelValues(string(job.Kind), string(entity.JobCompleted)).Inc()
	logger.Info("Job completed", zap.Duration("duration", time.Since(start)))
	d.publish(Event{JobID: job.ID, State: entity.JobCompleted, Result: resultJSON})
}

// invoke runs the handler, turning a panic into a general error.
func (d *Dispatcher) invoke(ctx context.Context, job *entity.Job) (result any, err error) {
	h, ok := d.handlers[job.Kind]
	if !ok {
		return nil, apperrors.BadRequestError(fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind), fmt.Sprintf("unknown job kind %q", job.Kind))
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.ErrorsTotal.WithLabelValues("dispatcher", "panic").Inc()
			err = apperrors.GeneralError(fmt.Errorf("job handler panicked: %v", r))
		}
	}()
	return h(ctx, job)
}
