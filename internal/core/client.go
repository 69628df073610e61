package core

// Client is one connected session as seen by the hub. The id is minted by
// the transport when the connection is accepted and serves as the author
// key for recall authorization. Name, Avatar, and Room are bound on the
// first successful join and mutated only by the hub goroutine.
type Client struct {
	ID     string
	Name   string
	Avatar string
	Room   string // empty until joined; a session joins at most one room

	// Out carries serialized frames to the connection's write loop. Sends
	// are non-blocking; a full buffer drops the frame.
	Out chan []byte
}

// NewClient constructs an unjoined client with a buffered outbound queue.
func NewClient(id string) *Client {
	return &Client{
		ID:  id,
		Out: make(chan []byte, 256),
	}
}

// Joined reports whether the session has entered a room.
func (c *Client) Joined() bool {
	return c.Room != ""
}

func (c *Client) send(data []byte) {
	if data == nil {
		return
	}
	select {
	case c.Out <- data:
	default:
		// Drop if slow consumer.
	}
}
