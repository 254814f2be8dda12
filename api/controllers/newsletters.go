package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/newsletter-backend/api/middleware"
	"github.com/angelmondragon/newsletter-backend/api/responses"
	"github.com/angelmondragon/newsletter-backend/api/validators"
	"github.com/angelmondragon/newsletter-backend/internal/idempotency"
	"github.com/angelmondragon/newsletter-backend/internal/newsletters"
	pkgerrors "github.com/angelmondragon/newsletter-backend/pkg/errors"
	"github.com/angelmondragon/newsletter-backend/pkg/logger"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type admissionGate interface {
	TryProcessing(ctx context.Context, actorID uuid.UUID, key idempotency.Key) (idempotency.NextAction, error)
	SaveResponse(ctx context.Context, uow *idempotency.UnitOfWork, resp idempotency.Response) (idempotency.Response, error)
}

type issuePublisher interface {
	Publish(ctx context.Context, tx *gorm.DB, in newsletters.PublishInput) (newsletters.PublishResult, error)
}

type issueReader interface {
	Issue(ctx context.Context, id uuid.UUID) (newsletters.IssueStatus, error)
}

type publishNewsletterRequest struct {
	Title          string `json:"title" validate:"required"`
	TextContent    string `json:"text_content" validate:"required"`
	HTMLContent    string `json:"html_content" validate:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

type publishNewsletterResponse struct {
	IssueID     uuid.UUID `json:"issue_id"`
	Recipients  int       `json:"recipients"`
	PublishedAt time.Time `json:"published_at"`
}

type newsletterIssueResponse struct {
	ID                uuid.UUID `json:"id"`
	Title             string    `json:"title"`
	TextContent       string    `json:"text_content"`
	HTMLContent       string    `json:"html_content"`
	PublishedAt       time.Time `json:"published_at"`
	PendingDeliveries int64     `json:"pending_deliveries"`
}

// PublishNewsletter admits the request through the idempotency gate, stages the
// issue and its delivery tasks in the gate's transaction, and persists the
// response before it is written to the client.
func PublishNewsletter(gate admissionGate, svc issuePublisher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if gate == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "newsletter service unavailable"))
			return
		}

		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body publishNewsletterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		// Keys are opaque: no trimming or case folding before ParseKey.
		rawKey := body.IdempotencyKey
		if rawKey == "" {
			rawKey = r.Header.Get(IdempotencyKeyHeader)
		}
		key, err := idempotency.ParseKey(rawKey)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		action, err := gate.TryProcessing(ctx, actorID, key)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		switch next := action.(type) {
		case idempotency.ReturnSavedResponse:
			next.Response.Replay(w)
			return
		case idempotency.StartProcessing:
			uow := next.UnitOfWork
			defer func() {
				if err := uow.Rollback(); err != nil && logg != nil {
					logg.Error(ctx, "rollback newsletter publish", err)
				}
			}()

			result, err := svc.Publish(ctx, uow.Tx(), newsletters.PublishInput{
				Title:       body.Title,
				TextContent: body.TextContent,
				HTMLContent: body.HTMLContent,
			})
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			rec := idempotency.NewRecorder()
			responses.WriteSuccessStatus(rec, http.StatusAccepted, publishNewsletterResponse{
				IssueID:     result.IssueID,
				Recipients:  result.Recipients,
				PublishedAt: result.PublishedAt,
			})

			saved, err := gate.SaveResponse(ctx, uow, rec.Response())
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			saved.Replay(w)
		default:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "unexpected admission outcome"))
		}
	}
}

// GetNewsletterIssue reports an issue and how many deliveries are still queued for it.
func GetNewsletterIssue(svc issueReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "newsletter service unavailable"))
			return
		}

		issueID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "issueId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid issue id"))
			return
		}

		status, err := svc.Issue(r.Context(), issueID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newsletterIssueResponse{
			ID:                status.Issue.ID,
			Title:             status.Issue.Title,
			TextContent:       status.Issue.TextContent,
			HTMLContent:       status.Issue.HTMLContent,
			PublishedAt:       status.Issue.PublishedAt,
			PendingDeliveries: status.Pending,
		})
	}
}

func actorFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context")
	}
	actorID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return actorID, nil
}
