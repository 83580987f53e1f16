package chat

import (
	"sync"
	"testing"
)

func newTestClient(id string) *Client {
	return &Client{
		ID:   id,
		send: make(chan []byte, sendBuffer),
	}
}

func drain(c *Client) []string {
	var out []string
	for {
		select {
		case msg := <-c.send:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestHub_JoinLeave(t *testing.T) {
	hub := NewHub()
	c := newTestClient("a")

	hub.Register(c)
	hub.Join("Guest123", c)
	hub.Join(TopicPublic, c)

	if got := hub.Online("Guest123"); got != 1 {
		t.Errorf("Online(Guest123) = %d, want 1", got)
	}
	if got := hub.Online(TopicPublic); got != 1 {
		t.Errorf("Online(public) = %d, want 1", got)
	}

	hub.Leave("Guest123", c)
	if got := hub.Online("Guest123"); got != 0 {
		t.Errorf("Online(Guest123) after leave = %d, want 0", got)
	}
}

func TestHub_UnregisterLeavesEveryTopic(t *testing.T) {
	hub := NewHub()
	c := newTestClient("a")

	hub.Register(c)
	hub.Join("alice", c)
	hub.Join(TopicStaff, c)
	hub.Unregister(c)

	if got := hub.Online("alice"); got != 0 {
		t.Errorf("Online(alice) after unregister = %d, want 0", got)
	}
	if got := hub.Online(TopicStaff); got != 0 {
		t.Errorf("Online(staff) after unregister = %d, want 0", got)
	}
	if got := len(hub.Clients()); got != 0 {
		t.Errorf("Clients() after unregister = %d, want 0", got)
	}
}

func TestHub_UnregisterTwice(t *testing.T) {
	hub := NewHub()
	c := newTestClient("a")

	hub.Register(c)
	hub.Unregister(c)
	// A second unregister must be a no-op, not a gauge underflow.
	hub.Unregister(c)

	if got := len(hub.Clients()); got != 0 {
		t.Errorf("Clients() = %d, want 0", got)
	}
}

func TestHub_MultipleInstancesSameTopic(t *testing.T) {
	hub := NewHub()
	a := newTestClient("a")
	b := newTestClient("b")

	hub.Register(a)
	hub.Register(b)
	hub.Join("alice", a)
	hub.Join("alice", b)

	if got := hub.Online("alice"); got != 2 {
		t.Errorf("Online(alice) = %d, want 2", got)
	}
	if got := len(hub.Members("alice")); got != 2 {
		t.Errorf("Members(alice) = %d, want 2", got)
	}
}

func TestHub_BroadcastExcept(t *testing.T) {
	hub := NewHub()
	sender := newTestClient("sender")
	other := newTestClient("other")
	outside := newTestClient("outside")

	hub.Register(sender)
	hub.Register(other)
	hub.Register(outside)
	hub.Join(TopicPublic, sender)
	hub.Join(TopicPublic, other)
	hub.Join(TopicStaff, outside)

	payload := []byte(`{"event":"newMessage"}`)
	hub.BroadcastExcept(TopicPublic, sender, payload)

	if got := drain(sender); len(got) != 0 {
		t.Errorf("sender received %d payloads, want 0", len(got))
	}
	if got := drain(other); len(got) != 1 || got[0] != string(payload) {
		t.Errorf("other received %v, want exactly the payload", got)
	}
	if got := drain(outside); len(got) != 0 {
		t.Errorf("outside-topic client received %d payloads, want 0", len(got))
	}
}

func TestHub_BroadcastAll(t *testing.T) {
	hub := NewHub()
	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = newTestClient(string(rune('a' + i)))
		hub.Register(clients[i])
	}

	hub.BroadcastAll([]byte(`{"event":"clearChat"}`))

	for i, c := range clients {
		if got := drain(c); len(got) != 1 {
			t.Errorf("client %d received %d payloads, want 1", i, len(got))
		}
	}
}

func TestHub_BroadcastNilPayload(t *testing.T) {
	hub := NewHub()
	c := newTestClient("a")
	hub.Register(c)
	hub.Join(TopicPublic, c)

	// A failed marshal yields nil; the hub must swallow it.
	hub.Broadcast(TopicPublic, nil)
	hub.BroadcastAll(nil)

	if got := drain(c); len(got) != 0 {
		t.Errorf("client received %d payloads, want 0", len(got))
	}
}

func TestHub_Concurrent(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup
	const n = 20

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c := newTestClient(string(rune('a' + id)))
			hub.Register(c)
			hub.Join(TopicPublic, c)
		}(i)
	}
	wg.Wait()

	if got := hub.Online(TopicPublic); got != n {
		t.Errorf("Online(public) after concurrent joins = %d, want %d", got, n)
	}
}
