package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/newsletter-backend/api/middleware"
	"github.com/angelmondragon/newsletter-backend/internal/delivery"
	"github.com/angelmondragon/newsletter-backend/internal/idempotency"
	"github.com/angelmondragon/newsletter-backend/internal/newsletters"
	"github.com/angelmondragon/newsletter-backend/internal/subscribers"
	"github.com/angelmondragon/newsletter-backend/pkg/db"
	"github.com/angelmondragon/newsletter-backend/pkg/db/dbtest"
	"github.com/angelmondragon/newsletter-backend/pkg/db/models"
	"github.com/angelmondragon/newsletter-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/newsletter-backend/pkg/errors"
	"github.com/angelmondragon/newsletter-backend/pkg/types"
)

type newsletterFixture struct {
	conn    *gorm.DB
	gate    *idempotency.Gate
	service *newsletters.Service
}

func newNewsletterFixture(t *testing.T) newsletterFixture {
	t.Helper()
	conn := dbtest.Open(t)

	gate, err := idempotency.NewGate(idempotency.GateParams{
		DB:         db.Wrap(conn),
		Repository: idempotency.NewRepository(conn),
	})
	require.NoError(t, err)

	svc, err := newsletters.NewService(newsletters.ServiceParams{
		Repository:  newsletters.NewRepository(conn),
		Subscribers: subscribers.NewRepository(),
		Queue:       delivery.NewQueue(conn),
	})
	require.NoError(t, err)

	return newsletterFixture{conn: conn, gate: gate, service: svc}
}

func publishRequest(t *testing.T, actorID uuid.UUID, body map[string]any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/newsletters", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if actorID != uuid.Nil {
		req = req.WithContext(middleware.WithUserID(req.Context(), actorID.String()))
	}
	return req
}

func validPublishBody(key string) map[string]any {
	body := map[string]any{
		"title":        "Weekly digest",
		"text_content": "Plain text body",
		"html_content": "<p>HTML body</p>",
	}
	if key != "" {
		body["idempotency_key"] = key
	}
	return body
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var env types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env.Error
}

func TestPublishNewsletterReplaysDuplicateSubmission(t *testing.T) {
	fx := newNewsletterFixture(t)
	dbtest.AddSubscriber(t, fx.conn, "one@example.com", enums.SubscriptionStatusConfirmed)
	dbtest.AddSubscriber(t, fx.conn, "two@example.com", enums.SubscriptionStatusConfirmed)
	handler := PublishNewsletter(fx.gate, fx.service, nil)
	actor := uuid.New()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, publishRequest(t, actor, validPublishBody("abc")))
	require.Equal(t, http.StatusAccepted, first.Code)
	require.Equal(t, "application/json", first.Header().Get("Content-Type"))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, publishRequest(t, actor, validPublishBody("abc")))
	require.Equal(t, http.StatusAccepted, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())

	var env struct {
		Data publishNewsletterResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &env))
	require.Equal(t, 2, env.Data.Recipients)
	require.NotEqual(t, uuid.Nil, env.Data.IssueID)

	require.EqualValues(t, 1, dbtest.CountRows(t, fx.conn, &models.NewsletterIssue{}))
	require.EqualValues(t, 2, dbtest.CountRows(t, fx.conn, &models.IssueDeliveryTask{}))
	require.EqualValues(t, 1, dbtest.CountRows(t, fx.conn, &models.Idempotency{}))
}

func TestPublishNewsletterKeyFromHeader(t *testing.T) {
	fx := newNewsletterFixture(t)
	handler := PublishNewsletter(fx.gate, fx.service, nil)
	actor := uuid.New()

	req := publishRequest(t, actor, validPublishBody(""))
	req.Header.Set(IdempotencyKeyHeader, "header-key")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	require.Equal(t, http.StatusAccepted, resp.Code)

	var row models.Idempotency
	require.NoError(t, fx.conn.First(&row).Error)
	require.Equal(t, "header-key", row.IdempotencyKey)
	require.Equal(t, actor, row.ActorID)
}

func TestPublishNewsletterSeparatesActors(t *testing.T) {
	fx := newNewsletterFixture(t)
	handler := PublishNewsletter(fx.gate, fx.service, nil)

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, publishRequest(t, uuid.New(), validPublishBody("shared")))
		require.Equal(t, http.StatusAccepted, resp.Code)
	}
	require.EqualValues(t, 2, dbtest.CountRows(t, fx.conn, &models.NewsletterIssue{}))
}

func TestPublishNewsletterRejectsMissingKey(t *testing.T) {
	fx := newNewsletterFixture(t)
	handler := PublishNewsletter(fx.gate, fx.service, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, publishRequest(t, uuid.New(), validPublishBody("")))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, string(pkgerrors.CodeValidation), decodeError(t, resp).Code)
	require.EqualValues(t, 0, dbtest.CountRows(t, fx.conn, &models.Idempotency{}))
}

func TestPublishNewsletterRejectsLongKey(t *testing.T) {
	fx := newNewsletterFixture(t)
	handler := PublishNewsletter(fx.gate, fx.service, nil)

	long := "k0123456789012345678901234567890123456789012345678"
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, publishRequest(t, uuid.New(), validPublishBody(long)))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestPublishNewsletterKeyIsComparedVerbatim(t *testing.T) {
	fx := newNewsletterFixture(t)
	handler := PublishNewsletter(fx.gate, fx.service, nil)
	actor := uuid.New()

	for _, key := range []string{"abc", "  abc  ", "ABC"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, publishRequest(t, actor, validPublishBody(key)))
		require.Equal(t, http.StatusAccepted, resp.Code, "key %q", key)
	}
	require.EqualValues(t, 3, dbtest.CountRows(t, fx.conn, &models.NewsletterIssue{}))

	var keys []string
	require.NoError(t, fx.conn.Model(&models.Idempotency{}).Order("idempotency_key").Pluck("idempotency_key", &keys).Error)
	require.ElementsMatch(t, []string{"abc", "  abc  ", "ABC"}, keys)
}

func TestPublishNewsletterCountsPaddingTowardsKeyLength(t *testing.T) {
	fx := newNewsletterFixture(t)
	handler := PublishNewsletter(fx.gate, fx.service, nil)

	padded := strings.Repeat("k", 49) + strings.Repeat(" ", 10)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, publishRequest(t, uuid.New(), validPublishBody(padded)))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, string(pkgerrors.CodeValidation), decodeError(t, resp).Code)

	blank := httptest.NewRecorder()
	handler.ServeHTTP(blank, publishRequest(t, uuid.New(), validPublishBody("   ")))
	require.Equal(t, http.StatusAccepted, blank.Code)

	require.EqualValues(t, 1, dbtest.CountRows(t, fx.conn, &models.Idempotency{}))
}

func TestPublishNewsletterRejectsMissingFields(t *testing.T) {
	fx := newNewsletterFixture(t)
	handler := PublishNewsletter(fx.gate, fx.service, nil)

	body := validPublishBody("abc")
	delete(body, "title")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, publishRequest(t, uuid.New(), body))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.EqualValues(t, 0, dbtest.CountRows(t, fx.conn, &models.Idempotency{}))
}

func TestPublishNewsletterRequiresActor(t *testing.T) {
	fx := newNewsletterFixture(t)
	handler := PublishNewsletter(fx.gate, fx.service, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, publishRequest(t, uuid.Nil, validPublishBody("abc")))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestPublishNewsletterFailureReleasesKey(t *testing.T) {
	fx := newNewsletterFixture(t)
	dbtest.AddSubscriber(t, fx.conn, "one@example.com", enums.SubscriptionStatusConfirmed)
	handler := PublishNewsletter(fx.gate, fx.service, nil)
	actor := uuid.New()

	// Whitespace passes decoding but is rejected by the service inside the gate's transaction.
	blank := validPublishBody("retry-me")
	blank["title"] = "   "
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, publishRequest(t, actor, blank))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.EqualValues(t, 0, dbtest.CountRows(t, fx.conn, &models.Idempotency{}))
	require.EqualValues(t, 0, dbtest.CountRows(t, fx.conn, &models.NewsletterIssue{}))

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, publishRequest(t, actor, validPublishBody("retry-me")))
	require.Equal(t, http.StatusAccepted, resp.Code)
	require.EqualValues(t, 1, dbtest.CountRows(t, fx.conn, &models.IssueDeliveryTask{}))
}

type failingGate struct{}

func (failingGate) TryProcessing(context.Context, uuid.UUID, idempotency.Key) (idempotency.NextAction, error) {
	return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, errors.New("db down"), "begin idempotency transaction")
}

func (failingGate) SaveResponse(context.Context, *idempotency.UnitOfWork, idempotency.Response) (idempotency.Response, error) {
	return idempotency.Response{}, errors.New("unreachable")
}

func TestPublishNewsletterGateFailure(t *testing.T) {
	fx := newNewsletterFixture(t)
	handler := PublishNewsletter(failingGate{}, fx.service, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, publishRequest(t, uuid.New(), validPublishBody("abc")))
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestGetNewsletterIssue(t *testing.T) {
	fx := newNewsletterFixture(t)
	dbtest.AddSubscriber(t, fx.conn, "one@example.com", enums.SubscriptionStatusConfirmed)
	dbtest.AddSubscriber(t, fx.conn, "two@example.com", enums.SubscriptionStatusConfirmed)
	actor := uuid.New()

	publish := httptest.NewRecorder()
	PublishNewsletter(fx.gate, fx.service, nil).ServeHTTP(publish, publishRequest(t, actor, validPublishBody("abc")))
	require.Equal(t, http.StatusAccepted, publish.Code)
	var published struct {
		Data publishNewsletterResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(publish.Body.Bytes(), &published))

	router := chi.NewRouter()
	router.Get("/newsletters/{issueId}", GetNewsletterIssue(fx.service, nil))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/newsletters/"+published.Data.IssueID.String(), nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var env struct {
		Data newsletterIssueResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	require.Equal(t, "Weekly digest", env.Data.Title)
	require.EqualValues(t, 2, env.Data.PendingDeliveries)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/newsletters/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/newsletters/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, resp.Code)
}
