package notifysink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/tracker/internal/fanout"
)

func newSinkForTest(t *testing.T, srv *httptest.Server) *Sink {
	return New(Config{SendURL: func(chatID int64) string { return srv.URL }}, zerolog.Nop())
}

func TestSendOkOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newSinkForTest(t, srv)
	result, _, err := s.Send(context.Background(), 1, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, fanout.SentOk, result)
}

func TestSendRateLimitedHonorsRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := newSinkForTest(t, srv)
	result, retryAfter, err := s.Send(context.Background(), 1, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, fanout.RateLimited, result)
	assert.Equal(t, 3_000_000_000, int(retryAfter))
}

func TestSendBlockedUserOnForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := newSinkForTest(t, srv)
	result, _, err := s.Send(context.Background(), 1, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, fanout.BlockedUser, result)
}

func TestSendTransientErrorOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newSinkForTest(t, srv)
	result, _, err := s.Send(context.Background(), 1, "hello", nil)
	require.Error(t, err)
	assert.Equal(t, fanout.TransientError, result)
}
