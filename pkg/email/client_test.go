package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/newsletter-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/newsletter-backend/pkg/errors"
)

func newClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	client, err := NewClient(config.EmailConfig{
		BaseURL:            baseURL,
		SenderEmail:        "newsletter@example.com",
		AuthorizationToken: "token-123",
		Timeout:            timeout,
	}, nil)
	require.NoError(t, err)
	return client
}

func recipient(t *testing.T) Address {
	t.Helper()
	addr, err := ParseAddress("reader@example.com")
	require.NoError(t, err)
	return addr
}

func TestSendPostsExpectedRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/email", r.URL.Path)
		require.Equal(t, "token-123", r.Header.Get("X-Postmark-Server-Token"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "newsletter@example.com", body["from"])
		require.Equal(t, "reader@example.com", body["to"])
		require.Equal(t, "Subject", body["subject"])
		require.Equal(t, "<p>hi</p>", body["html_body"])
		require.Equal(t, "hi", body["text_body"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL+"/", time.Second)
	require.NoError(t, client.Send(context.Background(), recipient(t), "Subject", "<p>hi</p>", "hi"))
	require.EqualValues(t, 1, calls.Load())
}

func TestSendFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream broke"))
	}))
	defer srv.Close()

	err := newClient(t, srv.URL, time.Second).Send(context.Background(), recipient(t), "s", "h", "t")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeDependency, typed.Code())
}

func TestSendTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	err := newClient(t, srv.URL, 50*time.Millisecond).Send(context.Background(), recipient(t), "s", "h", "t")
	require.Error(t, err)
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(config.EmailConfig{SenderEmail: "a@example.com"}, nil)
	require.Error(t, err)

	_, err = NewClient(config.EmailConfig{BaseURL: "http://localhost", SenderEmail: "nope"}, nil)
	require.Error(t, err)

	client, err := NewClient(config.EmailConfig{BaseURL: "http://localhost", SenderEmail: "a@example.com"}, nil)
	require.NoError(t, err)
	require.Equal(t, defaultTimeout, client.http.Timeout)
}

func TestNewClientLeavesCallerClientUntouched(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	client, err := NewClient(config.EmailConfig{
		BaseURL:     "http://localhost",
		SenderEmail: "a@example.com",
		Timeout:     2 * time.Second,
	}, shared)
	require.NoError(t, err)

	require.Equal(t, time.Minute, shared.Timeout)
	require.Equal(t, 2*time.Second, client.http.Timeout)
	require.NotSame(t, shared, client.http)
}
