package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/newsletter-backend/pkg/db/models"
	"github.com/angelmondragon/newsletter-backend/pkg/email"
	"github.com/angelmondragon/newsletter-backend/pkg/enums"
	"github.com/angelmondragon/newsletter-backend/pkg/logger"
	"github.com/angelmondragon/newsletter-backend/pkg/metrics"
)

const (
	defaultEmptyQueueInterval = 10 * time.Second
	defaultErrorInterval      = time.Second
	defaultSendTimeout        = 10 * time.Second
)

// Outcome is the result of one worker iteration that did not hit a storage error.
type Outcome int

const (
	OutcomeEmptyQueue Outcome = iota
	OutcomeTaskCompleted
	OutcomeTaskDeferred
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmptyQueue:
		return "empty_queue"
	case OutcomeTaskCompleted:
		return "task_completed"
	case OutcomeTaskDeferred:
		return "task_deferred"
	default:
		return "unknown"
	}
}

var errSendDeferred = errors.New("delivery deferred")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type issueReader interface {
	GetIssue(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.NewsletterIssue, error)
}

type WorkerParams struct {
	DB                 txRunner
	Queue              *Queue
	Issues             issueReader
	Sender             email.Sender
	Logger             *logger.Logger
	Metrics            *metrics.DeliveryMetrics
	EmptyQueueInterval time.Duration
	ErrorInterval      time.Duration
	SendTimeout        time.Duration
}

// Worker drains the delivery queue one task per transaction.
type Worker struct {
	db            txRunner
	queue         *Queue
	issues        issueReader
	sender        email.Sender
	logg          *logger.Logger
	metrics       *metrics.DeliveryMetrics
	emptyInterval time.Duration
	errorInterval time.Duration
	sendTimeout   time.Duration
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Queue == nil {
		return nil, errors.New("delivery queue is required")
	}
	if params.Issues == nil {
		return nil, errors.New("issue reader is required")
	}
	if params.Sender == nil {
		return nil, errors.New("email sender is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	w := &Worker{
		db:            params.DB,
		queue:         params.Queue,
		issues:        params.Issues,
		sender:        params.Sender,
		logg:          params.Logger,
		metrics:       params.Metrics,
		emptyInterval: params.EmptyQueueInterval,
		errorInterval: params.ErrorInterval,
		sendTimeout:   params.SendTimeout,
	}
	if w.emptyInterval <= 0 {
		w.emptyInterval = defaultEmptyQueueInterval
	}
	if w.errorInterval <= 0 {
		w.errorInterval = defaultErrorInterval
	}
	if w.sendTimeout <= 0 {
		w.sendTimeout = defaultSendTimeout
	}
	return w, nil
}

// TryExecuteTask claims, sends and removes at most one task. A failed send
// rolls the claim back so the task stays queued.
func (w *Worker) TryExecuteTask(ctx context.Context) (Outcome, error) {
	err := w.db.WithTx(ctx, func(tx *gorm.DB) error {
		task, err := w.queue.Dequeue(ctx, tx)
		if err != nil {
			return err
		}

		logCtx := w.logg.WithFields(ctx, map[string]any{
			"newsletter_issue_id": task.IssueID.String(),
			"subscriber_email":    task.SubscriberEmail,
		})

		issue, err := w.issues.GetIssue(ctx, tx, task.IssueID)
		if err != nil {
			return fmt.Errorf("load issue %s: %w", task.IssueID, err)
		}

		to, err := email.ParseAddress(task.SubscriberEmail)
		if err != nil {
			w.logg.Warn(w.logg.WithField(logCtx, "error", err.Error()), "skipping a confirmed subscriber with an invalid email address")
			w.metrics.IncOutcome(enums.DeliveryOutcomeSkippedInvalid)
			return w.queue.Delete(ctx, tx, task)
		}

		if err := w.send(ctx, to, issue); err != nil {
			w.logg.Error(logCtx, "failed to deliver issue to a confirmed subscriber", err)
			w.metrics.IncOutcome(enums.DeliveryOutcomeFailed)
			return errSendDeferred
		}
		w.metrics.IncOutcome(enums.DeliveryOutcomeSent)

		return w.queue.Delete(ctx, tx, task)
	})

	switch {
	case err == nil:
		return OutcomeTaskCompleted, nil
	case errors.Is(err, ErrQueueEmpty):
		return OutcomeEmptyQueue, nil
	case errors.Is(err, errSendDeferred):
		return OutcomeTaskDeferred, nil
	default:
		w.metrics.IncStorageError()
		return OutcomeEmptyQueue, err
	}
}

func (w *Worker) send(ctx context.Context, to email.Address, issue *models.NewsletterIssue) error {
	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	start := time.Now()
	err := w.sender.Send(sendCtx, to, issue.Title, issue.HTMLContent, issue.TextContent)
	w.metrics.ObserveSend(time.Since(start))
	return err
}

// Run loops until ctx is canceled. A completed task (delivered or dropped
// for an invalid address) loops immediately. An empty queue waits the empty
// queue interval. A deferred task (the send failed and the claim was rolled
// back) waits the error interval like a storage error, so an unreachable
// email API is not hammered with the same task.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		outcome, err := w.TryExecuteTask(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logg.Error(ctx, "delivery worker iteration failed", err)
			if err := sleep(ctx, w.errorInterval); err != nil {
				return err
			}
			continue
		}

		switch outcome {
		case OutcomeEmptyQueue:
			if err := sleep(ctx, w.emptyInterval); err != nil {
				return err
			}
		case OutcomeTaskDeferred:
			if err := sleep(ctx, w.errorInterval); err != nil {
				return err
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
