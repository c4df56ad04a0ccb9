package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sentrylabs/facewatch/internal/event"
)

func TestRegistrationLifecycle(t *testing.T) {
	hub := NewHub()
	if hub.ClientCount() != 0 {
		t.Fatalf("fresh hub has %d clients", hub.ClientCount())
	}

	c := &client{}
	hub.register(c)
	if hub.ClientCount() != 1 {
		t.Fatalf("after register: %d clients, want 1", hub.ClientCount())
	}

	hub.unregister(c)
	if hub.ClientCount() != 0 {
		t.Fatalf("after unregister: %d clients, want 0", hub.ClientCount())
	}

	// Unregistering twice must be harmless.
	hub.unregister(c)
	if hub.ClientCount() != 0 {
		t.Fatalf("after double unregister: %d clients, want 0", hub.ClientCount())
	}
}

func TestOriginChecker(t *testing.T) {
	wildcard := originChecker([]string{"*"})
	restricted := originChecker([]string{"http://dashboard.local"})

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "http://evil.example")

	if !wildcard(req) {
		t.Error("wildcard checker should admit any origin")
	}
	if restricted(req) {
		t.Error("restricted checker admitted a foreign origin")
	}

	req.Header.Set("Origin", "http://dashboard.local")
	if !restricted(req) {
		t.Error("restricted checker rejected a listed origin")
	}

	req.Header.Del("Origin")
	if !restricted(req) {
		t.Error("non-browser clients without an Origin header should be admitted")
	}
}

func TestBroadcastRecordReachesSubscriber(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub, []string{"*"}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()
	if resp != nil {
		resp.Body.Close()
	}

	// Registration happens just after the handshake completes server-side.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatal("subscriber never registered")
	}

	rec := event.NewFaceRecord(event.Face{
		Identity:   "Trix Darlucio",
		Confidence: 88.3,
		Timestamp:  time.Now(),
	}, event.Embedded([]byte{0xff}), event.DeviceIdentity{Serial: "SNABC123", Model: "RPI3"})

	hub.BroadcastRecord(rec)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error: %v", err)
	}

	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if msg.Type != "face" || msg.ID != rec.ID {
		t.Errorf("message identity = %s/%s, want face/%s", msg.Type, msg.ID, rec.ID)
	}
	if msg.Confidence != 88.3 {
		t.Errorf("confidence = %v, want 88.3", msg.Confidence)
	}
	if msg.Data["name"] != "Trix Darlucio" {
		t.Errorf("data name = %v", msg.Data["name"])
	}
}

func TestBroadcastRecordWithoutSubscribersIsNoOp(t *testing.T) {
	hub := NewHub()
	rec := event.NewMotionRecord(event.Motion{TotalArea: 500, Confidence: 50, Timestamp: time.Now()},
		event.ImagePayload{}, event.DeviceIdentity{}, 30, 200)

	// Must not panic or block.
	hub.BroadcastRecord(rec)
}
