// Package sqlite stores interview sessions in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/interviewer/internal/questionbank"
	"github.com/spigell/interviewer/internal/session"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	candidate_id TEXT,
	phase        TEXT NOT NULL,
	terminal     INTEGER NOT NULL DEFAULT 0,
	state        TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS responses (
	session_id  TEXT NOT NULL,
	number      INTEGER NOT NULL,
	question_id TEXT NOT NULL,
	method      TEXT NOT NULL,
	score       REAL NOT NULL,
	payload     TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	PRIMARY KEY (session_id, number)
);

CREATE TABLE IF NOT EXISTS questions (
	id      TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);
`

// Repository implements session.Repository. Responses live in their own
// append-only table; the session row holds everything else.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	r := New(db)
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an existing handle. The schema is not applied.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, session.ErrRepositoryUnavailable, err)
}

// LoadSession restores the session row and rebuilds its responses from the
// response table.
func (r *Repository) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	var state string
	err := r.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load session %q: %w", id, session.ErrSessionNotFound)
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("load session %q", id), err)
	}

	var s session.Session
	if err := json.Unmarshal([]byte(state), &s); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", id, err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT payload FROM responses WHERE session_id = ? ORDER BY number`, id)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("load responses of %q", id), err)
	}
	defer rows.Close()

	s.Responses = nil
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, unavailable(fmt.Sprintf("scan response of %q", id), err)
		}
		var t session.Turn
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, fmt.Errorf("decode response of %q: %w", id, err)
		}
		s.Responses = append(s.Responses, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(fmt.Sprintf("load responses of %q", id), err)
	}
	s.Persisted = len(s.Responses)
	return &s, nil
}

func (r *Repository) SaveSession(ctx context.Context, s *session.Session) error {
	c := *s
	c.Responses = nil
	state, err := json.Marshal(&c)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", s.ID, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, candidate_id, phase, terminal, state, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   candidate_id = excluded.candidate_id,
		   phase = excluded.phase,
		   terminal = excluded.terminal,
		   state = excluded.state,
		   updated_at = excluded.updated_at`,
		s.ID, s.CandidateID, string(s.Phase), s.Terminal, string(state), s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return unavailable(fmt.Sprintf("save session %q", s.ID), err)
	}
	return nil
}

// AppendResponse ignores a turn number that is already stored, so retries are safe.
func (r *Repository) AppendResponse(ctx context.Context, sessionID string, t session.Turn) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode response %s#%d: %w", sessionID, t.Number, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO responses (session_id, number, question_id, method, score, payload, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, number) DO NOTHING`,
		sessionID, t.Number, t.QuestionID, string(t.Method), t.Score, string(payload), t.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return unavailable(fmt.Sprintf("append response %s#%d", sessionID, t.Number), err)
	}
	return nil
}

func (r *Repository) LoadQuestionBank(ctx context.Context) ([]questionbank.Question, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT payload FROM questions ORDER BY id`)
	if err != nil {
		return nil, unavailable("load question bank", err)
	}
	defer rows.Close()

	var out []questionbank.Question
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, unavailable("scan question", err)
		}
		var q questionbank.Question
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("load question bank", err)
	}
	return out, nil
}

// SeedQuestions inserts questions that are not stored yet, in one transaction.
// Stored questions are never rewritten, since recorded responses refer to
// them by id. It returns the ids whose stored payload differs from qs.
func (r *Repository) SeedQuestions(ctx context.Context, qs []questionbank.Question) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("seed questions", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO questions (id, payload) VALUES (?, ?)
		 ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return nil, unavailable("seed questions", err)
	}
	defer stmt.Close()

	var changed []string
	for _, q := range qs {
		payload, err := json.Marshal(q)
		if err != nil {
			return nil, fmt.Errorf("encode question %q: %w", q.ID, err)
		}
		res, err := stmt.ExecContext(ctx, q.ID, string(payload))
		if err != nil {
			return nil, unavailable(fmt.Sprintf("seed question %q", q.ID), err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 0 {
			continue
		}

		var stored string
		if err := tx.QueryRowContext(ctx, `SELECT payload FROM questions WHERE id = ?`, q.ID).Scan(&stored); err != nil {
			return nil, unavailable(fmt.Sprintf("check question %q", q.ID), err)
		}
		if stored != string(payload) {
			changed = append(changed, q.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("seed questions", err)
	}
	return changed, nil
}
