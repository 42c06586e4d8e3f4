package feeds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/tracker/internal/dedup"
)

func TestRefreshComputesAddedAndDropped(t *testing.T) {
	f := &WalletFeed{
		dedupSet: dedup.NewSet(10),
		log:      zerolog.Nop(),
		now:      time.Now,
		current:  map[string]bool{"walletA": true},
		dropped:  map[string]bool{},
		feed:     wsfeedStub{},
	}

	f.Refresh([]string{"walletA", "walletB"})

	f.mu.Lock()
	assert.True(t, f.current["walletB"])
	assert.False(t, f.dropped["walletA"])
	f.mu.Unlock()

	f.Refresh([]string{"walletB"})
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.True(t, f.dropped["walletA"], "removing a wallet must mark it dropped for consumer-side filtering")
}

func TestHandleFrameFiltersDroppedWallet(t *testing.T) {
	var received int
	f := &WalletFeed{
		dedupSet: dedup.NewSet(10),
		handler:  func(ctx context.Context, msg RawMessage) { received++ },
		log:      zerolog.Nop(),
		now:      time.Now,
		current:  map[string]bool{},
		dropped:  map[string]bool{"walletA": true},
	}

	frame, _ := json.Marshal(map[string]any{"method": "logsNotification", "sig": "sig1", "wallet": "walletA"})
	f.handleFrame(context.Background(), frame)
	assert.Equal(t, 0, received, "notifications for a dropped wallet must be filtered consumer-side")
}

func TestHandleFrameDropsHeartbeat(t *testing.T) {
	var received int
	f := &WalletFeed{
		dedupSet: dedup.NewSet(10),
		handler:  func(ctx context.Context, msg RawMessage) { received++ },
		log:      zerolog.Nop(),
		now:      time.Now,
		current:  map[string]bool{},
		dropped:  map[string]bool{},
	}

	frame, _ := json.Marshal(map[string]any{"result": 42})
	f.handleFrame(context.Background(), frame)
	assert.Equal(t, 0, received)
}

func TestWalletFeedEndToEndOverWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		_, _, _ = conn.ReadMessage() // drain the logsSubscribe from onOpen
		event, _ := json.Marshal(map[string]any{"sig": "wallet-sig-1", "wallet": "walletA", "method": "logsNotification"})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, event))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	received := make(chan RawMessage, 1)
	f := NewWalletFeed(WalletFeedConfig{RPCWSURL: wsURLOf(srv)}, dedup.NewSet(10), func(ctx context.Context, msg RawMessage) {
		received <- msg
	}, zerolog.Nop())
	f.current["walletA"] = true

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go f.Run(ctx)

	select {
	case msg := <-received:
		assert.Equal(t, "wallet-sig-1", msg.Sig)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wallet event")
	}
}

// wsfeedStub satisfies wsConn without opening a real socket.
type wsfeedStub struct{}

func (wsfeedStub) Connected() bool         { return false }
func (wsfeedStub) Send(msg []byte) error   { return nil }
