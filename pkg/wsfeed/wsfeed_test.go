package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRunDeliversFramesFromServer(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := New(wsURL(srv), zerolog.Nop(), func(ctx context.Context, send func([]byte) error) error {
		return send([]byte("hello"))
	}, WithPingInterval(time.Hour))

	frames := f.Run(ctx)
	select {
	case msg := <-frames:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}
}

func TestRunClosesChannelOnContextCancel(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	f := New(wsURL(srv), zerolog.Nop(), nil, WithPingInterval(time.Hour))
	frames := f.Run(ctx)
	cancel()

	select {
	case _, ok := <-frames:
		assert.False(t, ok, "channel should close after ctx cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after ctx cancel")
	}
}

func TestBackoffGrowsExponentiallyAndCaps(t *testing.T) {
	assert.Equal(t, 15*time.Second, backoff(0, 15*time.Second, 5*time.Minute))
	assert.Equal(t, 30*time.Second, backoff(1, 15*time.Second, 5*time.Minute))
	assert.Equal(t, 60*time.Second, backoff(2, 15*time.Second, 5*time.Minute))
	assert.Equal(t, 5*time.Minute, backoff(10, 15*time.Second, 5*time.Minute), "must cap rather than grow unbounded")
}

func TestSendWithoutConnectionErrors(t *testing.T) {
	f := New("ws://unused", zerolog.Nop(), nil)
	err := f.Send([]byte("x"))
	assert.Error(t, err)
}
