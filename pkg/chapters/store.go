package chapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/chapters-api/internal/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"
)

// Store is the document store the API reads and writes chapters through.
type Store interface {
	// Count returns the number of chapters matching f.
	Count(ctx context.Context, f Filter) (int, error)

	// Find returns up to limit chapters matching f after skipping skip,
	// oldest first.
	Find(ctx context.Context, f Filter, skip, limit int) ([]Chapter, error)

	// FindByID returns ErrInvalidID for a malformed id and ErrNotFound when
	// no chapter has that id.
	FindByID(ctx context.Context, id string) (*Chapter, error)

	// InsertOne assigns the id and timestamps and persists ch.
	InsertOne(ctx context.Context, ch *Chapter) error
}

// Config holds the database settings.
type Config struct {
	// Path is the SQLite file path, or ":memory:".
	Path string `yaml:"path"`

	Retry retry.Config `yaml:"retry"`
}

// DefaultConfig returns the default database configuration.
func DefaultConfig() Config {
	return Config{
		Path:  "chapters.db",
		Retry: retry.DefaultConfig(),
	}
}

// DB is the SQLite-backed Store.
type DB struct {
	db     *bun.DB
	logger zerolog.Logger
	now    func() time.Time
}

var _ Store = (*DB)(nil)

// Open connects to the database, creating the chapters table if needed.
// The connection is verified with retries; an error here is fatal for the
// server.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	sqldb, err := sql.Open("sqlite", dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer at a time.
	sqldb.SetMaxOpenConns(1)

	err = retry.Do(ctx, "database", cfg.Retry, func(ctx context.Context) error {
		return sqldb.PingContext(ctx)
	})
	if err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db := &DB{
		db:     bun.NewDB(sqldb, sqlitedialect.New()),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}

	if _, err := db.db.NewCreateTable().Model((*Chapter)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if _, err := db.db.NewCreateIndex().
		Model((*Chapter)(nil)).
		Index("chapters_created_at_idx").
		IfNotExists().
		Column("created_at", "id").
		Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.Info().Str("path", cfg.Path).Msg("Database ready")
	return db, nil
}

func dsn(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func applyFilter(q *bun.SelectQuery, f Filter) *bun.SelectQuery {
	if f.IsZero() {
		return q
	}
	if f.Class != nil {
		q = q.Where("class = ?", *f.Class)
	}
	if f.Unit != nil {
		q = q.Where("unit = ?", *f.Unit)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Subject != nil {
		q = q.Where("subject = ?", *f.Subject)
	}
	if f.IsWeakChapter != nil {
		q = q.Where("is_weak_chapter = ?", *f.IsWeakChapter)
	}
	return q
}

// Count implements Store.
func (d *DB) Count(ctx context.Context, f Filter) (int, error) {
	n, err := applyFilter(d.db.NewSelect().Model((*Chapter)(nil)), f).Count(ctx)
	observe("count", err)
	if err != nil {
		return 0, fmt.Errorf("count chapters: %w", err)
	}
	return n, nil
}

// Find implements Store.
func (d *DB) Find(ctx context.Context, f Filter, skip, limit int) ([]Chapter, error) {
	out := make([]Chapter, 0, limit)
	err := applyFilter(d.db.NewSelect().Model(&out), f).
		Order("created_at ASC", "id ASC").
		Offset(skip).
		Limit(limit).
		Scan(ctx)
	observe("find", err)
	if err != nil {
		return nil, fmt.Errorf("find chapters: %w", err)
	}
	return out, nil
}

// FindByID implements Store.
func (d *DB) FindByID(ctx context.Context, id string) (*Chapter, error) {
	uid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	ch := new(Chapter)
	err = d.db.NewSelect().Model(ch).Where("id = ?", uid.String()).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		observe("find_by_id", nil)
		return nil, ErrNotFound
	}
	observe("find_by_id", err)
	if err != nil {
		return nil, fmt.Errorf("find chapter %s: %w", id, err)
	}
	return ch, nil
}

// InsertOne implements Store.
func (d *DB) InsertOne(ctx context.Context, ch *Chapter) error {
	if ch.ID == uuid.Nil {
		ch.ID = uuid.New()
	}
	now := d.now()
	ch.CreatedAt = now
	ch.UpdatedAt = now

	_, err := d.db.NewInsert().Model(ch).Exec(ctx)
	observe("insert", err)
	if err != nil {
		return fmt.Errorf("insert chapter: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}
