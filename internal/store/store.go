package store

// Message is a persisted chat record. Field names on the wire match the
// stored form so history replay can reuse the same encoding.
type Message struct {
	ID       string `json:"msgId"`
	AuthorID string `json:"authorId,omitempty"`
	Author   string `json:"user"`
	Avatar   string `json:"avatar,omitempty"`
	Body     string `json:"message"`
	ReplyTo  string `json:"replyTo,omitempty"`
	Time     string `json:"time"`
	Date     string `json:"date"`
	// SentAt is a unix-millisecond instant. The time/date strings above are
	// display-only and do not sort across a date rollover.
	SentAt int64 `json:"ts"`
}

// RoomRecord is the durable part of a room: passphrase and message log.
// Live membership is never persisted.
type RoomRecord struct {
	Passphrase string    `json:"password"`
	Messages   []Message `json:"messages"`
}

// State is a full snapshot of every room's durable data, keyed by room id.
type State map[string]RoomRecord

// Store is a durable backend for room state.
//
// Load is fail-open: a backend that cannot read or parse its data logs the
// problem, reinitializes itself empty, and returns an empty State. It never
// returns an error to the caller.
type Store interface {
	// Load reads the full durable state.
	Load() State

	// ScheduleSave requests an eventual write of state. Calls within the
	// debounce window coalesce into one write of the most recent state.
	ScheduleSave(state State)

	// SaveNow writes state synchronously.
	SaveNow(state State) error

	// Close flushes any pending scheduled save and releases the backend.
	Close() error
}
