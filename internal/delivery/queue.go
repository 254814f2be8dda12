package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/newsletter-backend/pkg/db/models"
)

const enqueueBatchSize = 500

// ErrQueueEmpty is returned by Dequeue when no unclaimed task exists.
var ErrQueueEmpty = errors.New("delivery queue is empty")

// Task is one pending send of an issue to one subscriber.
type Task struct {
	IssueID         uuid.UUID
	SubscriberEmail string
}

type Queue struct {
	db *gorm.DB
}

func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue inserts one task per email inside tx and returns how many were queued.
func (q *Queue) Enqueue(ctx context.Context, tx *gorm.DB, issueID uuid.UUID, emails []string) (int, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	if len(emails) == 0 {
		return 0, nil
	}
	rows := make([]models.IssueDeliveryTask, 0, len(emails))
	for _, email := range emails {
		rows = append(rows, models.IssueDeliveryTask{
			NewsletterIssueID: issueID,
			SubscriberEmail:   email,
		})
	}
	if err := tx.WithContext(ctx).CreateInBatches(&rows, enqueueBatchSize).Error; err != nil {
		return 0, fmt.Errorf("enqueue deliveries: %w", err)
	}
	return len(rows), nil
}

// Dequeue claims one task for the lifetime of tx. Rows locked by other
// transactions are skipped, so concurrent workers never share a task.
func (q *Queue) Dequeue(ctx context.Context, tx *gorm.DB) (Task, error) {
	if tx == nil {
		return Task{}, errors.New("transaction required")
	}
	var rows []models.IssueDeliveryTask
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return Task{}, fmt.Errorf("dequeue delivery: %w", err)
	}
	if len(rows) == 0 {
		return Task{}, ErrQueueEmpty
	}
	return Task{IssueID: rows[0].NewsletterIssueID, SubscriberEmail: rows[0].SubscriberEmail}, nil
}

// Delete removes a claimed task. Exactly one row must match.
func (q *Queue) Delete(ctx context.Context, tx *gorm.DB, task Task) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	res := tx.WithContext(ctx).
		Where("newsletter_issue_id = ? AND subscriber_email = ?", task.IssueID, task.SubscriberEmail).
		Delete(&models.IssueDeliveryTask{})
	if res.Error != nil {
		return fmt.Errorf("delete delivery: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("delete delivery: expected 1 row, removed %d", res.RowsAffected)
	}
	return nil
}

// Pending counts the tasks still queued for issueID.
func (q *Queue) Pending(ctx context.Context, issueID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).
		Model(&models.IssueDeliveryTask{}).
		Where("newsletter_issue_id = ?", issueID).
		Count(&count).Error
	return count, err
}
