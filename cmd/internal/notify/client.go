package notify

import "sync"

// Client is one connected socket.
//
// send is never closed by the server so concurrent publishers cannot panic;
// done signals the socket goroutines to stop.
type Client struct {
	ID  string
	SID string

	// key is owned by the Hub and only touched under its lock.
	key string

	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient returns a Client with a bounded send queue.
func NewClient(id, identityKey, sid string, queue int) *Client {
	if queue <= 0 {
		queue = defaultSendQueue
	}
	return &Client{
		ID:   id,
		SID:  sid,
		key:  identityKey,
		send: make(chan Event, queue),
		done: make(chan struct{}),
	}
}

// Done is closed once the client shuts down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// offer enqueues without blocking.
func (c *Client) offer(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}
