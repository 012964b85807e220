package agentstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"petrel/internal/model"
)

// ErrNotFound is returned when a key or memory does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite database holding the agent's durable state:
// the key-value cache, conversation memories, the action log, and cursors.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
	  key TEXT PRIMARY KEY,
	  value TEXT NOT NULL,
	  expires_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS memories (
	  id TEXT PRIMARY KEY,
	  room_id TEXT NOT NULL,
	  author_id TEXT,
	  text TEXT,
	  created_at INTEGER NOT NULL,
	  raw TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_room ON memories(room_id);
	CREATE TABLE IF NOT EXISTS actions (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  ts INTEGER NOT NULL,
	  kind TEXT NOT NULL,
	  target TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_actions_ts ON actions(ts);
	CREATE TABLE IF NOT EXISTS cursors (
	  name TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);
	`)
	return err
}

// Get returns the value for key. Expired entries read as missing.
func (d *DB) Get(ctx context.Context, key string) (string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key=?`, key)
	var v string
	var exp sql.NullInt64
	if err := row.Scan(&v, &exp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if exp.Valid && time.Now().Unix() >= exp.Int64 {
		_, _ = d.sql.ExecContext(ctx, `DELETE FROM kv WHERE key=?`, key)
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key. A zero expiresAt means no expiry.
func (d *DB) Set(ctx context.Context, key, value string, expiresAt time.Time) error {
	var exp *int64
	if !expiresAt.IsZero() {
		u := expiresAt.Unix()
		exp = &u
	}
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO kv(key, value, expires_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at`,
		key, value, exp)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (d *DB) Delete(ctx context.Context, key string) error {
	_, err := d.sql.ExecContext(ctx, `DELETE FROM kv WHERE key=?`, key)
	return err
}

// CreateMemory stores a conversation memory once; re-inserting the same id
// is a no-op.
func (d *DB) CreateMemory(ctx context.Context, m model.Memory) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT OR IGNORE INTO memories(id, room_id, author_id, text, created_at, raw) VALUES(?,?,?,?,?,?)`,
		m.ID, m.RoomID, m.AuthorID, m.Text, m.CreatedAt.Unix(), m.Raw)
	return err
}

func (d *DB) GetMemoryByID(ctx context.Context, id string) (model.Memory, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT id, room_id, author_id, text, created_at, raw FROM memories WHERE id=?`, id)
	return scanMemory(row)
}

// GetMemoriesByRoomIDs returns memories for the given rooms, oldest first.
func (d *DB) GetMemoriesByRoomIDs(ctx context.Context, roomIDs []string) ([]model.Memory, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	q := `SELECT id, room_id, author_id, text, created_at, raw FROM memories WHERE room_id IN (?` +
		repeat(",?", len(roomIDs)-1) + `) ORDER BY created_at`
	args := make([]any, len(roomIDs))
	for i, r := range roomIDs {
		args[i] = r
	}
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var ts int64
	var author, text, raw sql.NullString
	if err := row.Scan(&m.ID, &m.RoomID, &author, &text, &ts, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, ErrNotFound
		}
		return m, err
	}
	m.AuthorID = author.String
	m.Text = text.String
	m.Raw = raw.String
	m.CreatedAt = time.Unix(ts, 0).UTC()
	return m, nil
}

// PutAction appends to the action log.
func (d *DB) PutAction(ctx context.Context, ts time.Time, kind, target string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO actions(ts, kind, target) VALUES(?,?,?)`,
		ts.Unix(), kind, target)
	return err
}

// CountActionsWithin counts actions of a kind in [start, end).
// Empty kind counts all kinds.
func (d *DB) CountActionsWithin(ctx context.Context, start, end time.Time, kind string) (int, error) {
	var row *sql.Row
	if kind == "" {
		row = d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions WHERE ts>=? AND ts<?`,
			start.Unix(), end.Unix())
	} else {
		row = d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions WHERE ts>=? AND ts<? AND kind=?`,
			start.Unix(), end.Unix(), kind)
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Action is a stored action-log row.
type Action struct {
	TS     time.Time
	Kind   string
	Target string
}

// LoadActionsRange returns actions in [start, end), oldest first.
func (d *DB) LoadActionsRange(ctx context.Context, start, end time.Time) ([]Action, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT ts, kind, COALESCE(target,'') FROM actions WHERE ts>=? AND ts<? ORDER BY ts`,
		start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Action
	for rows.Next() {
		var ts int64
		var a Action
		if err := rows.Scan(&ts, &a.Kind, &a.Target); err != nil {
			return nil, err
		}
		a.TS = time.Unix(ts, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveCursor stores a named cursor value.
func (d *DB) SaveCursor(ctx context.Context, name, value string) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO cursors(name, value) VALUES(?,?) ON CONFLICT(name) DO UPDATE SET value=excluded.value`,
		name, value)
	return err
}

// LoadCursor returns the stored cursor value, or "" if absent.
func (d *DB) LoadCursor(ctx context.Context, name string) (string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE name=?`, name)
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
