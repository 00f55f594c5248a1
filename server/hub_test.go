package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsMessage mirrors WSMessage with a raw payload for decoding in tests.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialWS(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of type msgType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) wsMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatal(err)
		}
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_InitialMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env, "")

	msg := readUntil(t, conn, MessageTypeInitial)
	var data InitialData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Sessions) != 1 || data.Sessions[0].ID != env.sess.ID().String() {
		t.Errorf("initial sessions = %+v", data.Sessions)
	}
	waitForClients(t, env.srv.Hub(), 1)
}

func TestHub_PreviewsChangedAfterRender(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env, "")
	readUntil(t, conn, MessageTypeInitial)
	waitForClients(t, env.srv.Hub(), 1)

	okID := env.keyID(t, "ok")
	if _, err := env.sess.Render(context.Background(), okID); err != nil {
		t.Fatal(err)
	}

	msg := readUntil(t, conn, MessageTypePreviewsChanged)
	var data PreviewsChangedData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.SessionID != env.sess.ID().String() {
		t.Errorf("SessionID = %s", data.SessionID)
	}
	found := false
	for _, id := range data.KeyIDs {
		found = found || id == okID
	}
	if !found {
		t.Errorf("KeyIDs = %v, want %s", data.KeyIDs, okID)
	}
}

func TestHub_GenerationAndSessionClosed(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env, "")
	readUntil(t, conn, MessageTypeInitial)
	waitForClients(t, env.srv.Hub(), 1)

	path := "/api/sessions/" + env.sess.ID().String()
	if resp := env.do(t, http.MethodPost, path+"/generation", map[string]int{"counter": 3}); resp.StatusCode != http.StatusOK {
		t.Fatalf("generation status = %d", resp.StatusCode)
	}
	var gen GenerationData
	if err := json.Unmarshal(readUntil(t, conn, MessageTypeGeneration).Data, &gen); err != nil {
		t.Fatal(err)
	}
	if gen.Generation.Counter != 3 {
		t.Errorf("Generation.Counter = %d, want 3", gen.Generation.Counter)
	}

	if resp := env.do(t, http.MethodDelete, path, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	var closed SessionClosedData
	if err := json.Unmarshal(readUntil(t, conn, MessageTypeSessionClosed).Data, &closed); err != nil {
		t.Fatal(err)
	}
	if closed.SessionID != env.sess.ID().String() {
		t.Errorf("SessionID = %s", closed.SessionID)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env, "")
	readUntil(t, conn, MessageTypeInitial)
	waitForClients(t, env.srv.Hub(), 1)

	conn.Close()
	waitForClients(t, env.srv.Hub(), 0)
}

func TestHub_RequiresTokenWhenAuthEnabled(t *testing.T) {
	env := newTestEnv(t, func(c *Config, _ *Deps) {
		c.AccessTokenHash = testTokenHash(t, "s3cret")
	})

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}

	conn := dialWS(t, env, "?access_token=s3cret")
	readUntil(t, conn, MessageTypeInitial)
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.BroadcastBufferSize = 1
	hub := NewHub(cfg, nil, nil)

	hub.Broadcast(NewErrorMessage("a", "first"))
	hub.Broadcast(NewErrorMessage("b", "second"))
	if got := len(hub.broadcast); got != 1 {
		t.Errorf("queued = %d, want 1", got)
	}
}
