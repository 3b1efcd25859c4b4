package spi

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by stores for operations on unknown records.
var ErrNotFound = errors.New("not found")

// Record is a stored file, folder or tag. Every record has an "id".
type Record map[string]any

// ID returns the record id as a string.
func (r Record) ID() string { return IDString(r["id"]) }

// IDString normalizes an id received over JSON (string or number) to a string.
func IDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		if id == float64(int64(id)) {
			return fmt.Sprintf("%d", int64(id))
		}
		return fmt.Sprint(id)
	default:
		return fmt.Sprint(id)
	}
}

// Filter selects records by equality on their fields. The reserved key
// FilterDeleted selects recycle-bin entries instead of live ones.
type Filter map[string]any

// FilterDeleted is the reserved filter key selecting recycle-bin records.
const FilterDeleted = "deleted"

// DeleteOptions controls how a record is deleted.
type DeleteOptions struct {
	// MoveToRecycleBin keeps the record recoverable instead of erasing it.
	MoveToRecycleBin bool
}

// LibraryInfo summarizes a library.
type LibraryInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Files     int       `json:"files"`
	Folders   int       `json:"folders"`
	Tags      int       `json:"tags"`
	Recycled  int       `json:"recycled"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the storage backend of one library. Return values and errors
// propagate unmodified to the client.
type Store interface {
	GetFiles(ctx context.Context, filters Filter) ([]Record, error)
	CreateFile(ctx context.Context, data Record) (Record, error)
	CreateFileFromPath(ctx context.Context, path string, data Record) (Record, error)
	UpdateFile(ctx context.Context, id string, patch Record) (bool, error)
	DeleteFile(ctx context.Context, id string, opts DeleteOptions) (bool, error)
	RecoverFile(ctx context.Context, id string) (bool, error)

	GetFolders(ctx context.Context, filters Filter) ([]Record, error)
	CreateFolder(ctx context.Context, data Record) (Record, error)
	UpdateFolder(ctx context.Context, id string, patch Record) (bool, error)
	DeleteFolder(ctx context.Context, id string, opts DeleteOptions) (bool, error)
	RecoverFolder(ctx context.Context, id string) (bool, error)

	GetTags(ctx context.Context, filters Filter) ([]Record, error)
	CreateTag(ctx context.Context, data Record) (Record, error)
	UpdateTag(ctx context.Context, id string, patch Record) (bool, error)
	DeleteTag(ctx context.Context, id string, opts DeleteOptions) (bool, error)
	RecoverTag(ctx context.Context, id string) (bool, error)

	GetLibraryInfo(ctx context.Context) (LibraryInfo, error)
	GetLibraryID() string
	Close() error
}
