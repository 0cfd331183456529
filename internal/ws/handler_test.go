package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"share_runner/internal/logbus"
)

func dial(t *testing.T, srv *httptest.Server, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	return websocket.DefaultDialer.Dial(u, header)
}

func TestHandler_ReplaysAndStreamsFilteredTypes(t *testing.T) {
	bus := logbus.New(10)
	bus.Log("info", "before connect", nil)
	bus.Publish("account_state", map[string]any{"index": 1})

	mux := http.NewServeMux()
	mux.Handle("/ws", NewHandler(bus, nil))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn, _, err := dial(t, srv, "?types=log", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first logbus.Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Type != "log" {
		t.Fatalf("first = %+v", first)
	}

	// 等订阅建立后再发
	time.Sleep(50 * time.Millisecond)
	bus.Publish("sweep_state", map[string]any{"id": "x"})
	bus.Log("warn", "after connect", nil)

	var next logbus.Message
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatal(err)
	}
	data, _ := next.Data.(map[string]any)
	if next.Type != "log" || data["msg"] != "after connect" {
		t.Fatalf("next = %+v", next)
	}
}

func TestHandler_RejectsUnknownOrigin(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/ws", NewHandler(logbus.New(10), []string{"http://allowed.local"}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, resp, err := dial(t, srv, "", http.Header{"Origin": []string{"http://evil.local"}})
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestParseTypes(t *testing.T) {
	f := parseTypes(" log , sweep_state,,")
	if !f.match("log") || !f.match("sweep_state") || f.match("account_state") {
		t.Fatalf("filter = %v", f)
	}
	if !parseTypes("").match("anything") {
		t.Fatal("empty filter should match all")
	}
}
