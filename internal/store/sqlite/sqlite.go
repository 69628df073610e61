// Package sqlite persists room state in a SQLite database. It serves the
// same full-snapshot contract as the jsonfile backend: SaveNow replaces the
// whole durable state in one transaction.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/vchaly/roomcast/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	passphrase TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	room_id   TEXT    NOT NULL,
	seq       INTEGER NOT NULL,
	msg_id    TEXT    NOT NULL,
	author_id TEXT    NOT NULL,
	author    TEXT    NOT NULL,
	avatar    TEXT    NOT NULL,
	body      TEXT    NOT NULL,
	reply_to  TEXT    NOT NULL,
	time      TEXT    NOT NULL,
	date      TEXT    NOT NULL,
	ts        INTEGER NOT NULL,
	PRIMARY KEY (room_id, seq),
	FOREIGN KEY (room_id) REFERENCES rooms(id)
);
`

// Store implements store.Store for SQLite.
type Store struct {
	db        *sql.DB
	debouncer *store.Debouncer
	log       *zerolog.Logger
}

// New opens the database and applies the schema.
func New(dbPath string, debounce time.Duration, logger *zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db, log: logger}
	s.debouncer = store.NewDebouncer(debounce, s.SaveNow, logger)
	return s, nil
}

// Load rebuilds the full state, messages ordered by insertion sequence.
// Any failure logs, drops and recreates the schema, and returns empty.
func (s *Store) Load() store.State {
	state, err := s.load()
	if err != nil {
		s.log.Error().Err(err).Msg("load sqlite state, resetting")
		s.reset()
		return store.State{}
	}
	return state
}

func (s *Store) load() (store.State, error) {
	state := store.State{}

	rows, err := s.db.Query(`SELECT id, passphrase FROM rooms`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	for rows.Next() {
		var id, passphrase string
		if err := rows.Scan(&id, &passphrase); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan room: %w", err)
		}
		state[id] = store.RoomRecord{Passphrase: passphrase}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	rows.Close()

	rows, err = s.db.Query(`
		SELECT room_id, msg_id, author_id, author, avatar, body, reply_to, time, date, ts
		FROM messages
		ORDER BY room_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roomID string
		var msg store.Message
		if err := rows.Scan(&roomID, &msg.ID, &msg.AuthorID, &msg.Author, &msg.Avatar,
			&msg.Body, &msg.ReplyTo, &msg.Time, &msg.Date, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		rec := state[roomID]
		rec.Messages = append(rec.Messages, msg)
		state[roomID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return state, nil
}

// ScheduleSave coalesces bursts of mutations into one write.
func (s *Store) ScheduleSave(state store.State) {
	s.debouncer.Schedule(state)
}

// SaveNow replaces the stored snapshot in a single transaction.
func (s *Store) SaveNow(state store.State) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM rooms`); err != nil {
		return fmt.Errorf("clear rooms: %w", err)
	}

	insertRoom, err := tx.Prepare(`INSERT INTO rooms (id, passphrase) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare room insert: %w", err)
	}
	defer insertRoom.Close()

	insertMsg, err := tx.Prepare(`
		INSERT INTO messages (room_id, seq, msg_id, author_id, author, avatar, body, reply_to, time, date, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	defer insertMsg.Close()

	for roomID, rec := range state {
		if _, err := insertRoom.Exec(roomID, rec.Passphrase); err != nil {
			return fmt.Errorf("insert room %q: %w", roomID, err)
		}
		for seq, msg := range rec.Messages {
			if _, err := insertMsg.Exec(roomID, seq, msg.ID, msg.AuthorID, msg.Author,
				msg.Avatar, msg.Body, msg.ReplyTo, msg.Time, msg.Date, msg.SentAt); err != nil {
				return fmt.Errorf("insert message %q/%q: %w", roomID, msg.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close flushes any pending scheduled save and closes the database.
func (s *Store) Close() error {
	s.debouncer.Flush()
	return s.db.Close()
}

func (s *Store) reset() {
	if _, err := s.db.Exec(`DROP TABLE IF EXISTS messages; DROP TABLE IF EXISTS rooms;`); err != nil {
		s.log.Error().Err(err).Msg("drop sqlite schema")
		return
	}
	if _, err := s.db.Exec(schema); err != nil {
		s.log.Error().Err(err).Msg("recreate sqlite schema")
	}
}
