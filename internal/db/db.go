package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"outreach-mailer/internal/config"
	"outreach-mailer/internal/models"
)

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Name          string    `bun:"name,notnull,unique"`
	Content       string    `bun:"content,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database. The "pg" driver uses bun's native driver,
// "postgres" goes through lib/pq.
func ConnectDB(storageConfig *config.StorageConfig) (*sql.DB, error) {
	switch storageConfig.Driver {
	case "pg":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(storageConfig.DSN))), nil
	case "postgres":
		return sql.Open("postgres", storageConfig.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", storageConfig.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Store keeps the named documents in the documents table.
type Store struct {
	db *bun.DB
}

// Open connects, checks the connection and creates the table if needed.
func Open(ctx context.Context, storageConfig *config.StorageConfig) (*Store, error) {
	sqldb, err := ConnectDB(storageConfig)
	if err != nil {
		return nil, models.NewIOError("database", err)
	}
	db := NewDB(sqldb, storageConfig.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, models.NewIOError("database", err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, models.NewIOError("database", err)
	}
	log.Info().Str("driver", storageConfig.Driver).Msg("Connected to database")
	return &Store{db: db}, nil
}

func (s *Store) Read(ctx context.Context, name string) (string, error) {
	var doc Document
	err := s.db.NewSelect().
		Model(&doc).
		Column("content").
		Where("name = ?", name).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	if err != nil {
		return "", models.NewIOError(name, err)
	}
	return doc.Content, nil
}

func (s *Store) Write(ctx context.Context, name, text string) error {
	doc := &Document{Name: name, Content: text, UpdatedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().
		Model(doc).
		On("CONFLICT (name) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return models.NewIOError(name, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
