// v0
// internal/journal/store.go
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS symptoms (
	id TEXT PRIMARY KEY,
	logged_on TEXT NOT NULL,
	pain REAL NOT NULL,
	fatigue REAL NOT NULL,
	mood TEXT NOT NULL DEFAULT '',
	period_start TEXT NOT NULL DEFAULT '',
	period_end TEXT NOT NULL DEFAULT '',
	acne INTEGER NOT NULL DEFAULT 0,
	hair_fall INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_symptoms_recency ON symptoms(logged_on DESC, created_at DESC);

CREATE TABLE IF NOT EXISTS foods (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	logged_on TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_foods_recency ON foods(logged_on DESC, created_at DESC);
`

// Store persists symptom and food entries in a SQLite database. It is safe
// for concurrent use; database/sql serializes access to the connection.
type Store struct {
	db   *sql.DB
	path string
	log  *slog.Logger
	now  func() time.Time
}

// Open creates or opens the journal database at path. The special path
// ":memory:" keeps everything in memory, which tests rely on.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		return nil, errors.New("logger must not be nil")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	log.Info("journal_opened", slog.String("path", path))
	return &Store{db: db, path: path, log: log, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// AddSymptom validates and stores a new symptom entry, assigning its ID,
// creation time, and (when missing) its date.
func (s *Store) AddSymptom(ctx context.Context, e SymptomEntry) (SymptomEntry, error) {
	if err := e.Validate(); err != nil {
		return SymptomEntry{}, err
	}
	now := s.now().UTC()
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if strings.TrimSpace(e.Date) == "" {
		e.Date = now.Format(DateLayout)
	}
	e.CreatedAt = now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO symptoms (id, logged_on, pain, fatigue, mood, period_start, period_end, acne, hair_fall, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		e.ID, e.Date, e.Pain, e.Fatigue, e.Mood, e.PeriodStart, e.PeriodEnd, boolInt(e.Acne), boolInt(e.HairFall), now.UnixNano(),
	)
	if err := inserted(res, err); err != nil {
		return SymptomEntry{}, fmt.Errorf("insert symptom %s: %w", e.ID, err)
	}
	return e, nil
}

// RecentSymptoms returns up to limit entries ordered most-recent-first.
// A non-positive limit returns the whole log.
func (s *Store) RecentSymptoms(ctx context.Context, limit int) ([]SymptomEntry, error) {
	q := `SELECT id, logged_on, pain, fatigue, mood, period_start, period_end, acne, hair_fall, created_at
	      FROM symptoms ORDER BY logged_on DESC, created_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query symptoms: %w", err)
	}
	defer rows.Close()

	out := []SymptomEntry{}
	for rows.Next() {
		var (
			e         SymptomEntry
			acne, hf  int
			createdNs int64
		)
		if err := rows.Scan(&e.ID, &e.Date, &e.Pain, &e.Fatigue, &e.Mood, &e.PeriodStart, &e.PeriodEnd, &acne, &hf, &createdNs); err != nil {
			return nil, fmt.Errorf("scan symptom: %w", err)
		}
		e.Acne = acne != 0
		e.HairFall = hf != 0
		e.CreatedAt = time.Unix(0, createdNs).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddFood validates and stores a new food entry.
func (s *Store) AddFood(ctx context.Context, e FoodEntry) (FoodEntry, error) {
	cat, err := ParseCategory(string(e.Category))
	if err != nil {
		return FoodEntry{}, err
	}
	e.Category = cat
	if err := e.Validate(); err != nil {
		return FoodEntry{}, err
	}
	now := s.now().UTC()
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if strings.TrimSpace(e.Date) == "" {
		e.Date = now.Format(DateLayout)
	}
	e.CreatedAt = now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO foods (id, name, category, logged_on, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		e.ID, strings.TrimSpace(e.Name), string(e.Category), e.Date, now.UnixNano(),
	)
	if err := inserted(res, err); err != nil {
		return FoodEntry{}, fmt.Errorf("insert food %s: %w", e.ID, err)
	}
	e.Name = strings.TrimSpace(e.Name)
	return e, nil
}

// Foods returns the whole food log ordered most-recent-first.
func (s *Store) Foods(ctx context.Context) ([]FoodEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, logged_on, created_at FROM foods ORDER BY logged_on DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query foods: %w", err)
	}
	defer rows.Close()

	out := []FoodEntry{}
	for rows.Next() {
		var (
			e         FoodEntry
			cat       string
			createdNs int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &cat, &e.Date, &createdNs); err != nil {
			return nil, fmt.Errorf("scan food: %w", err)
		}
		e.Category = Category(cat)
		e.CreatedAt = time.Unix(0, createdNs).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteFood removes a food entry by ID.
func (s *Store) DeleteFood(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM foods WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete food: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete food: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// inserted maps a conflict-ignoring insert that touched no row to ErrDuplicate.
func inserted(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
