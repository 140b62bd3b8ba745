package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-credit-api/pkg/jobs"
)

// Notification is a fire-and-forget message addressed to one user.
type Notification struct {
	UserID  string                 `json:"userId"`
	Type    string                 `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
	SentAt  time.Time              `json:"sentAt"`
}

// Notification types emitted by the attendance pipeline.
const (
	NotificationAttendanceRecorded = "ATTENDANCE_RECORDED"
	NotificationAttendanceReview   = "ATTENDANCE_REVIEW"
	NotificationFeedbackModerated  = "FEEDBACK_MODERATED"
	NotificationRegistration       = "REGISTRATION"
)

// NotificationService dispatches user notifications through a background
// worker pool. Delivery failures are retried by the queue; they never
// propagate back into the request path.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService builds the dispatcher with its own queue.
func NewNotificationService(logger *zap.Logger, workers, maxRetries int) *NotificationService {
	s := &NotificationService{logger: logger}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: maxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a notification. Errors are logged, not returned, so
// callers stay decoupled from delivery.
func (s *NotificationService) Notify(n Notification) {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    n.Type,
		Payload: n,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err))
	}
}

// deliver is the queue handler. The current delivery channel is the
// structured log stream; push and email gateways plug in here.
func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	s.logger.Info("notification delivered",
		zap.String("user_id", n.UserID),
		zap.String("type", n.Type),
		zap.String("title", n.Title),
		zap.String("message", n.Message))
	return nil
}
