package feed

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/rentpulse/internal/event"
)

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	var hello ServerMessage
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	require.Equal(t, "hello", hello.Type)
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_StreamsEventsByCategory(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	all := dial(t, ctx, wsURL)
	rulesOnly := dial(t, ctx, wsURL+"?category=rule")
	waitForClients(t, hub, 2)

	at := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	expired := event.NewActionExpired(at, event.ActionExpiredPayload{ActionID: "a1", UnitID: "u1", RuleID: "r1"})
	changed := event.NewRuleChanged(at, event.RuleChangedPayload{RuleID: "r1", RuleName: "R", Change: "updated"})
	require.NoError(t, hub.HandleEvent(ctx, expired))
	require.NoError(t, hub.HandleEvent(ctx, changed))

	var msg ServerMessage
	require.NoError(t, wsjson.Read(ctx, all, &msg))
	require.NotNil(t, msg.Event)
	assert.Equal(t, event.TypeActionExpired, msg.Event.EventType)
	require.NoError(t, wsjson.Read(ctx, all, &msg))
	assert.Equal(t, event.TypeRuleChanged, msg.Event.EventType)

	require.NoError(t, wsjson.Read(ctx, rulesOnly, &msg))
	assert.Equal(t, event.TypeRuleChanged, msg.Event.EventType)

	all.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, hub, 1)
}
