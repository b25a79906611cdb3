package core

const defaultSendBuffer = 32

// Client is one live connection as seen by the hub.
type Client struct {
	ID       string
	Username string
	Events   chan *Event
}

// NewClient constructs a client with a buffered outbound queue.
func NewClient(id, username string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		ID:       id,
		Username: username,
		Events:   make(chan *Event, buffer),
	}
}
