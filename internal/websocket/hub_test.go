package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, groupID, accountID int64) *Client {
	return &Client{
		hub:       hub,
		send:      make(chan []byte, sendBufferSize),
		groupID:   groupID,
		accountID: accountID,
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1, 10)
	c2 := mockClient(hub, 1, 11)
	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	// Should not panic
	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastScopedToGroup(t *testing.T) {
	hub := NewHub(slog.Default())

	inGroup := mockClient(hub, 1, 10)
	otherGroup := mockClient(hub, 2, 10)
	hub.Register(inGroup)
	hub.Register(otherGroup)

	hub.Broadcast(NewMessage(1, "submission", "approved", 42, map[string]any{"balance": float64(50)}))

	select {
	case data := <-inGroup.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "submission_approved" {
			t.Errorf("expected type submission_approved, got %s", got.Type)
		}
		if got.GroupID != 1 {
			t.Errorf("expected group 1, got %d", got.GroupID)
		}
		if got.ID != 42 {
			t.Errorf("expected id 42, got %d", got.ID)
		}
		if got.Extra["balance"] != float64(50) {
			t.Errorf("expected balance 50, got %v", got.Extra["balance"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}

	select {
	case data := <-otherGroup.send:
		t.Errorf("client in another group received %s", data)
	default:
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, 1, 10)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage(1, "test", "fill", int64(i), nil))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage(1, "test", "dropped", 999, nil))

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("expected %d buffered messages, got %d", sendBufferSize, got)
	}
	hub.Unregister(c)
}

func TestDisconnect(t *testing.T) {
	hub := NewHub(slog.Default())

	kicked := mockClient(hub, 1, 10)
	stays := mockClient(hub, 1, 11)
	elsewhere := mockClient(hub, 2, 10)
	for _, c := range []*Client{kicked, stays, elsewhere} {
		hub.Register(c)
	}

	hub.Disconnect(1, 10)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients after disconnect, got %d", got)
	}
	if _, ok := <-kicked.send; ok {
		t.Error("expected kicked client's channel to be closed")
	}

	hub.DisconnectGroup(1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after group disconnect, got %d", got)
	}
	if _, ok := <-stays.send; ok {
		t.Error("expected group client's channel to be closed")
	}

	// Removed clients unregistering themselves later must not panic.
	hub.Unregister(kicked)
	hub.Unregister(stays)
	hub.Unregister(elsewhere)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(3, "shop_item", "purchased", 5, nil)
	if msg.Type != "shop_item_purchased" {
		t.Errorf("expected type shop_item_purchased, got %s", msg.Type)
	}
	if msg.GroupID != 3 {
		t.Errorf("expected group 3, got %d", msg.GroupID)
	}
	if msg.Action != "purchased" {
		t.Errorf("expected action purchased, got %s", msg.Action)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(group int64) {
			defer wg.Done()
			c := mockClient(hub, group, 1)
			hub.Register(c)
			hub.Broadcast(NewMessage(group, "test", "concurrent", 0, nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}(int64(i % 3))
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
