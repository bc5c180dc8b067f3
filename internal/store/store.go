package store

import (
	"context"
	"fmt"

	"outreach-mailer/internal/config"
	"outreach-mailer/internal/db"
	"outreach-mailer/internal/models"
)

// Store persists the named reference texts (company_info, prospect_info).
// Writes replace the whole text; the last write wins.
type Store interface {
	Read(ctx context.Context, name string) (string, error)
	Write(ctx context.Context, name, text string) error
	Close() error
}

var _ Store = (*FileStore)(nil)
var _ Store = (*db.Store)(nil)

// Open returns the backend selected by storageConfig.Driver.
func Open(ctx context.Context, storageConfig *config.StorageConfig) (Store, error) {
	switch storageConfig.Driver {
	case "file", "":
		return NewFileStore(storageConfig.Dir)
	case "pg", "postgres":
		return db.Open(ctx, storageConfig)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", storageConfig.Driver)
	}
}

// ValidName reports whether name is one of the persisted documents.
func ValidName(name string) error {
	switch name {
	case models.CompanyInfoName, models.ProspectInfoName:
		return nil
	}
	return models.NewInputError("unknown document %q", name)
}
