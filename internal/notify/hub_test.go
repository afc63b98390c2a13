package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bwt-sh/bwt-go/internal/bwt"
)

func TestHubInitialState(t *testing.T) {
	hub := NewHub()
	if hub.ClientCount() != 0 {
		t.Errorf("initial ClientCount = %d, want 0", hub.ClientCount())
	}
}

func TestEventRoundTrip(t *testing.T) {
	event := Event{
		Type:      EventIndexUpdate,
		Data:      map[string]interface{}{"txid": "abc"},
		Timestamp: 1234567890,
	}
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var parsed Event
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Type != event.Type || parsed.Timestamp != event.Timestamp {
		t.Errorf("round trip mismatch: %+v vs %+v", parsed, event)
	}
}

func TestHubBroadcastsToConnectedClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the hub's register goroutine time to process the connection.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	height := int64(100)
	hub.SendUpdates([]bwt.IndexUpdate{{Kind: bwt.UpdateNewTransaction, TxID: "tx1", Height: &height}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading broadcast: %v", err)
	}

	var received Event
	if err := json.Unmarshal(msg, &received); err != nil {
		t.Fatalf("unmarshaling broadcast: %v", err)
	}
	if received.Type != EventIndexUpdate {
		t.Errorf("event type = %s, want %s", received.Type, EventIndexUpdate)
	}
}

func TestSendUpdatesIgnoresEmptyBatch(t *testing.T) {
	hub := NewHub()
	// An empty batch must not put an event on the broadcast channel. The
	// hub's Run loop is not started, so nothing else drains the channel
	// and any emitted event would be seen here.
	hub.SendUpdates(nil)
	select {
	case <-hub.broadcast:
		t.Error("SendUpdates(nil) should not emit an event")
	case <-time.After(50 * time.Millisecond):
	}
}
