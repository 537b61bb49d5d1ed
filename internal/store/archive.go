package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brunoamancio/Smith/internal/chat"
)

// ArchivedConversation is one saved conversation.
type ArchivedConversation struct {
	ID         string
	Endpoint   string
	AgentName  string
	SessionID  string
	ArchivedAt time.Time
	History    []chat.Message
}

// Archive saves finished conversations.
type Archive interface {
	// Save stores a snapshot of a finished conversation and returns
	// its archive id.
	Save(endpoint string, snap chat.Snapshot) (string, error)

	// Get loads one archived conversation with its transcript.
	Get(id string) (*ArchivedConversation, error)

	// List returns archived conversations, newest first, without
	// transcripts.
	List() ([]ArchivedConversation, error)
}

// --- SQLite ---

// SQLiteArchive is an Archive backed by SQLite.
type SQLiteArchive struct {
	db *DB
}

// NewSQLiteArchive creates an archive using the given database.
func NewSQLiteArchive(db *DB) *SQLiteArchive {
	return &SQLiteArchive{db: db}
}

func (a *SQLiteArchive) Save(endpoint string, snap chat.Snapshot) (string, error) {
	id := uuid.New().String()

	tx, err := a.db.sql.Begin()
	if err != nil {
		return "", err
	}

	if _, err := tx.Exec(
		`INSERT INTO conversations (id, endpoint, agent_name, session_id, archived_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, endpoint, snap.AgentName, snap.SessionID, time.Now().Format(time.DateTime),
	); err != nil {
		tx.Rollback()
		return "", err
	}

	for _, msg := range snap.History {
		if _, err := tx.Exec(
			`INSERT INTO transcript_entries (conversation_id, role, content, timestamp)
			 VALUES (?, ?, ?, ?)`,
			id, string(msg.Role), msg.Content, msg.Timestamp.Format(time.DateTime),
		); err != nil {
			tx.Rollback()
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func (a *SQLiteArchive) Get(id string) (*ArchivedConversation, error) {
	var conv ArchivedConversation
	var archivedAt string
	err := a.db.sql.QueryRow(
		`SELECT id, endpoint, agent_name, session_id, archived_at
		 FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.Endpoint, &conv.AgentName, &conv.SessionID, &archivedAt)
	if err != nil {
		return nil, err
	}
	conv.ArchivedAt, _ = time.Parse(time.DateTime, archivedAt)

	rows, err := a.db.sql.Query(
		`SELECT role, content, timestamp FROM transcript_entries
		 WHERE conversation_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var role, content, ts string
		if err := rows.Scan(&role, &content, &ts); err != nil {
			return nil, err
		}
		msg := chat.Message{Role: chat.Role(role), Content: content}
		msg.Timestamp, _ = time.Parse(time.DateTime, ts)
		conv.History = append(conv.History, msg)
	}
	return &conv, rows.Err()
}

func (a *SQLiteArchive) List() ([]ArchivedConversation, error) {
	rows, err := a.db.sql.Query(
		`SELECT id, endpoint, agent_name, session_id, archived_at
		 FROM conversations ORDER BY archived_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchivedConversation
	for rows.Next() {
		var conv ArchivedConversation
		var archivedAt string
		if err := rows.Scan(&conv.ID, &conv.Endpoint, &conv.AgentName, &conv.SessionID, &archivedAt); err != nil {
			return nil, err
		}
		conv.ArchivedAt, _ = time.Parse(time.DateTime, archivedAt)
		out = append(out, conv)
	}
	return out, rows.Err()
}

// --- In-memory ---

// MemoryArchive is an in-memory Archive implementation.
type MemoryArchive struct {
	mu    sync.RWMutex
	convs map[string]*ArchivedConversation
	order []string
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{convs: make(map[string]*ArchivedConversation)}
}

func (a *MemoryArchive) Save(endpoint string, snap chat.Snapshot) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	history := make([]chat.Message, len(snap.History))
	copy(history, snap.History)

	conv := &ArchivedConversation{
		ID:         uuid.New().String(),
		Endpoint:   endpoint,
		AgentName:  snap.AgentName,
		SessionID:  snap.SessionID,
		ArchivedAt: time.Now(),
		History:    history,
	}
	a.convs[conv.ID] = conv
	a.order = append([]string{conv.ID}, a.order...)
	return conv.ID, nil
}

func (a *MemoryArchive) Get(id string) (*ArchivedConversation, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	conv, ok := a.convs[id]
	if !ok {
		return nil, &ConversationNotFoundError{ID: id}
	}
	return conv, nil
}

func (a *MemoryArchive) List() ([]ArchivedConversation, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ArchivedConversation, 0, len(a.order))
	for _, id := range a.order {
		conv := *a.convs[id]
		conv.History = nil
		out = append(out, conv)
	}
	return out, nil
}

// ConversationNotFoundError is returned when an archive id is unknown.
type ConversationNotFoundError struct {
	ID string
}

func (e *ConversationNotFoundError) Error() string {
	return "conversation not found: " + e.ID
}
