package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Okan-wqm/avinor-sub001/internal/models"
	"github.com/Okan-wqm/avinor-sub001/pkg/jobs"
)

// NotificationSink delivers a progression event to an external channel.
type NotificationSink interface {
	Deliver(ctx context.Context, event models.ProgressionEvent) error
}

// NotificationSinkFunc allows using plain functions as sinks.
type NotificationSinkFunc func(ctx context.Context, event models.ProgressionEvent) error

// Deliver implements NotificationSink.
func (f NotificationSinkFunc) Deliver(ctx context.Context, event models.ProgressionEvent) error {
	return f(ctx, event)
}

// NotificationService fans progression events out to sinks through an
// in-memory worker queue. Delivery is best-effort with bounded retries; the
// progression engine never waits on it.
type NotificationService struct {
	queue  *jobs.Queue
	sinks  []NotificationSink
	logger *zap.Logger
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(cfg jobs.QueueConfig, logger *zap.Logger, sinks ...NotificationSink) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{sinks: sinks, logger: logger}
	cfg.Logger = logger
	svc.queue = jobs.NewQueue("progression-events", svc.handle, cfg)
	return svc
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Publish enqueues an event for asynchronous delivery. Failures are logged,
// never surfaced to the caller.
func (s *NotificationService) Publish(event models.ProgressionEvent) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(event.Type),
		Payload: event,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue progression event",
			zap.String("type", string(event.Type)),
			zap.String("enrollment_id", event.EnrollmentID),
			zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.ProgressionEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			return fmt.Errorf("deliver %s for enrollment %s: %w", event.Type, event.EnrollmentID, err)
		}
	}
	return nil
}

// LogSink writes events to the application log. Default sink when no
// external channel is configured.
func LogSink(logger *zap.Logger) NotificationSink {
	return NotificationSinkFunc(func(_ context.Context, event models.ProgressionEvent) error {
		logger.Info("progression event",
			zap.String("type", string(event.Type)),
			zap.String("enrollment_id", event.EnrollmentID),
			zap.String("student_id", event.StudentID),
			zap.String("entity_id", event.EntityID))
		return nil
	})
}
