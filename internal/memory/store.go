package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"comfypilot/internal/chat"
	"comfypilot/internal/graph"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidSkill = errors.New("invalid skill")
)

const schema = `
CREATE TABLE IF NOT EXISTS rules (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	text       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS narrative (
	key  TEXT PRIMARY KEY,
	text TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS skills (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL,
	body        TEXT NOT NULL,
	tags        TEXT NOT NULL DEFAULT '[]',
	updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS threads (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	messages   TEXT NOT NULL,
	workflow   TEXT NOT NULL DEFAULT '[]'
);
`

// Store persists user rules, persona/goals, skills and conversation
// threads in a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure database: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddRule stores a new rule.
func (s *Store) AddRule(ctx context.Context, text string) (Rule, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Rule{}, errors.New("rule text is empty")
	}
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `INSERT INTO rules (text, created_at) VALUES (?, ?)`, text, now.UnixMilli())
	if err != nil {
		return Rule{}, fmt.Errorf("failed to add rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Rule{}, fmt.Errorf("failed to add rule: %w", err)
	}
	return Rule{ID: id, Text: text, CreatedAt: now}, nil
}

// Rules returns all rules, oldest first.
func (s *Store) Rules(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, created_at FROM rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		var created int64
		if err := rows.Scan(&r.ID, &r.Text, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(created)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// DeleteRule removes a rule by ID.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetNarrative stores persona or goals text. Empty text clears it.
func (s *Store) SetNarrative(ctx context.Context, key, text string) error {
	if key != KeyPersona && key != KeyGoals {
		return fmt.Errorf("unknown narrative key %q", key)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO narrative (key, text) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET text = excluded.text`, key, strings.TrimSpace(text))
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *Store) narrative(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, text FROM narrative`)
	if err != nil {
		return nil, fmt.Errorf("failed to read narrative: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// UserContext returns rules, persona and goals for the system context.
func (s *Store) UserContext(ctx context.Context) (UserContext, error) {
	rules, err := s.Rules(ctx)
	if err != nil {
		return UserContext{}, err
	}
	narr, err := s.narrative(ctx)
	if err != nil {
		return UserContext{}, err
	}

	uc := UserContext{Persona: narr[KeyPersona], Goals: narr[KeyGoals]}
	for _, r := range rules {
		uc.Rules = append(uc.Rules, r.Text)
	}
	return uc, nil
}

// SaveSkill creates or replaces a skill. The ID is derived from the name.
func (s *Store) SaveSkill(ctx context.Context, sk Skill) (Skill, error) {
	sk.Name = strings.TrimSpace(sk.Name)
	sk.ID = Slug(sk.Name)
	if sk.ID == "" {
		return Skill{}, fmt.Errorf("%w: name must contain a letter or digit", ErrInvalidSkill)
	}
	if strings.TrimSpace(sk.Body) == "" {
		return Skill{}, fmt.Errorf("%w: body is empty", ErrInvalidSkill)
	}
	if sk.Tags == nil {
		sk.Tags = []string{}
	}
	tags, err := json.Marshal(sk.Tags)
	if err != nil {
		return Skill{}, err
	}
	sk.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO skills (id, name, description, body, tags, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description,
		   body = excluded.body, tags = excluded.tags, updated_at = excluded.updated_at`,
		sk.ID, sk.Name, sk.Description, sk.Body, string(tags), sk.UpdatedAt.UnixMilli())
	if err != nil {
		return Skill{}, fmt.Errorf("failed to save skill: %w", err)
	}
	return sk, nil
}

// Skill loads a skill by ID (or by name, which is slugged).
func (s *Store) Skill(ctx context.Context, id string) (Skill, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, body, tags, updated_at FROM skills WHERE id = ?`, Slug(id))
	sk, err := scanSkill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Skill{}, fmt.Errorf("skill %q: %w", id, ErrNotFound)
	}
	return sk, err
}

// Skills lists every skill without bodies, by name.
func (s *Store) Skills(ctx context.Context) ([]Skill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, '', tags, updated_at FROM skills ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	defer rows.Close()

	var out []Skill
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// DeleteSkill removes a skill.
func (s *Store) DeleteSkill(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE id = ?`, Slug(id))
	if err != nil {
		return fmt.Errorf("failed to delete skill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("skill %q: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSkill(row scanner) (Skill, error) {
	var sk Skill
	var tags string
	var updated int64
	if err := row.Scan(&sk.ID, &sk.Name, &sk.Description, &sk.Body, &tags, &updated); err != nil {
		return Skill{}, err
	}
	if err := json.Unmarshal([]byte(tags), &sk.Tags); err != nil {
		return Skill{}, fmt.Errorf("skill %s has corrupt tags: %w", sk.ID, err)
	}
	sk.UpdatedAt = time.UnixMilli(updated)
	return sk, nil
}

// SaveThread writes a conversation and its workflow.
func (s *Store) SaveThread(ctx context.Context, t *chat.Thread, nodes []graph.Node) error {
	msgs, err := json.Marshal(t.Messages())
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}
	if nodes == nil {
		nodes = []graph.Node{}
	}
	wf, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("failed to encode workflow: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO threads (id, title, started_at, updated_at, messages, workflow) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at,
		   messages = excluded.messages, workflow = excluded.workflow`,
		t.ID, t.Title, t.StartTime.UnixMilli(), time.Now().UnixMilli(), string(msgs), string(wf))
	if err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}
	return nil
}

// LoadThread restores a conversation and its workflow nodes.
func (s *Store) LoadThread(ctx context.Context, id string) (*chat.Thread, []graph.Node, error) {
	var title, msgs, wf string
	var started int64
	err := s.db.QueryRowContext(ctx,
		`SELECT title, started_at, messages, workflow FROM threads WHERE id = ?`, id).
		Scan(&title, &started, &msgs, &wf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("thread %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load thread: %w", err)
	}

	var messages []*chat.Message
	if err := json.Unmarshal([]byte(msgs), &messages); err != nil {
		return nil, nil, fmt.Errorf("thread %s has corrupt messages: %w", id, err)
	}
	var nodes []graph.Node
	if err := json.Unmarshal([]byte(wf), &nodes); err != nil {
		return nil, nil, fmt.Errorf("thread %s has corrupt workflow: %w", id, err)
	}
	return chat.RestoreThread(id, title, time.UnixMilli(started), messages), nodes, nil
}

// Threads lists stored conversations, most recently updated first.
func (s *Store) Threads(ctx context.Context, limit int) ([]ThreadInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, started_at, updated_at FROM threads ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var out []ThreadInfo
	for rows.Next() {
		var ti ThreadInfo
		var started, updated int64
		if err := rows.Scan(&ti.ID, &ti.Title, &started, &updated); err != nil {
			return nil, err
		}
		ti.StartedAt = time.UnixMilli(started)
		ti.UpdatedAt = time.UnixMilli(updated)
		out = append(out, ti)
	}
	return out, rows.Err()
}
