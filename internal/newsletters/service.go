package newsletters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/newsletter-backend/internal/delivery"
	"github.com/angelmondragon/newsletter-backend/internal/subscribers"
	"github.com/angelmondragon/newsletter-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/newsletter-backend/pkg/errors"
	"github.com/angelmondragon/newsletter-backend/pkg/logger"
)

type PublishInput struct {
	Title       string
	TextContent string
	HTMLContent string
}

type PublishResult struct {
	IssueID     uuid.UUID
	Recipients  int
	PublishedAt time.Time
}

// IssueStatus is an issue together with its outstanding deliveries.
type IssueStatus struct {
	Issue   models.NewsletterIssue
	Pending int64
}

type issueStore interface {
	CreateIssue(ctx context.Context, tx *gorm.DB, issue *models.NewsletterIssue) error
	GetIssue(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.NewsletterIssue, error)
}

type ServiceParams struct {
	Repository  issueStore
	Subscribers subscribers.Directory
	Queue       *delivery.Queue
	Logger      *logger.Logger
}

// Service writes newsletter issues and their delivery fan-out.
type Service struct {
	repo        issueStore
	subscribers subscribers.Directory
	queue       *delivery.Queue
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, errors.New("newsletter repository is required")
	}
	if params.Subscribers == nil {
		return nil, errors.New("subscriber directory is required")
	}
	if params.Queue == nil {
		return nil, errors.New("delivery queue is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:        params.Repository,
		subscribers: params.Subscribers,
		queue:       params.Queue,
		logg:        logg,
		now:         time.Now,
	}, nil
}

// Publish stores the issue and one delivery task per confirmed subscriber in
// tx. It never commits and never sends email; the caller owns tx.
func (s *Service) Publish(ctx context.Context, tx *gorm.DB, in PublishInput) (PublishResult, error) {
	if tx == nil {
		return PublishResult{}, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateInput(in); err != nil {
		return PublishResult{}, err
	}

	issue := models.NewsletterIssue{
		ID:          uuid.New(),
		Title:       in.Title,
		TextContent: in.TextContent,
		HTMLContent: in.HTMLContent,
		PublishedAt: s.now().UTC(),
	}
	if err := s.repo.CreateIssue(ctx, tx, &issue); err != nil {
		return PublishResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store newsletter issue")
	}

	emails, err := s.subscribers.ConfirmedEmails(ctx, tx)
	if err != nil {
		return PublishResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list confirmed subscribers")
	}

	queued, err := s.queue.Enqueue(ctx, tx, issue.ID, emails)
	if err != nil {
		return PublishResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "enqueue delivery tasks")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"newsletter_issue_id": issue.ID.String(),
		"recipients":          queued,
	})
	s.logg.Info(logCtx, "newsletter issue staged for delivery")

	return PublishResult{
		IssueID:     issue.ID,
		Recipients:  queued,
		PublishedAt: issue.PublishedAt,
	}, nil
}

// Issue returns a published issue and how many deliveries are still queued.
func (s *Service) Issue(ctx context.Context, id uuid.UUID) (IssueStatus, error) {
	issue, err := s.repo.GetIssue(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return IssueStatus{}, pkgerrors.New(pkgerrors.CodeNotFound, "newsletter issue not found")
		}
		return IssueStatus{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load newsletter issue")
	}
	pending, err := s.queue.Pending(ctx, id)
	if err != nil {
		return IssueStatus{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count pending deliveries")
	}
	return IssueStatus{Issue: *issue, Pending: pending}, nil
}

func validateInput(in PublishInput) error {
	details := map[string]string{}
	if strings.TrimSpace(in.Title) == "" {
		details["title"] = "is required"
	}
	if strings.TrimSpace(in.TextContent) == "" {
		details["text_content"] = "is required"
	}
	if strings.TrimSpace(in.HTMLContent) == "" {
		details["html_content"] = "is required"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%d newsletter field(s) are blank", len(details))).WithDetails(details)
	}
	return nil
}
