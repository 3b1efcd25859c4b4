// Package storage provides the library stores behind the resource handlers:
// an in-memory store and a SQLite store. Both keep deleted records in a
// recycle bin until they are recovered or deleted permanently.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

// Record kinds.
const (
	KindFile   = "file"
	KindFolder = "folder"
	KindTag    = "tag"
)

// Reserved record fields maintained by the stores.
const (
	fieldID        = "id"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
	fieldDeletedAt = "deletedAt"
)

// backend is the per-kind record persistence used by store.
type backend interface {
	list(ctx context.Context, kind string, deleted bool) ([]spi.Record, error)
	insert(ctx context.Context, kind string, rec spi.Record) error
	get(ctx context.Context, kind, id string) (spi.Record, bool, error)
	put(ctx context.Context, kind, id string, rec spi.Record, deleted bool) error
	erase(ctx context.Context, kind, id string) error
	close() error
}

// store implements spi.Store on top of a backend.
type store struct {
	id        string
	createdAt time.Time
	b         backend
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (s *store) GetLibraryID() string { return s.id }

func (s *store) Close() error { return s.b.close() }

func (s *store) GetLibraryInfo(ctx context.Context) (spi.LibraryInfo, error) {
	info := spi.LibraryInfo{ID: s.id, Name: s.id, CreatedAt: s.createdAt}
	for _, kind := range []string{KindFile, KindFolder, KindTag} {
		live, err := s.b.list(ctx, kind, false)
		if err != nil {
			return info, err
		}
		gone, err := s.b.list(ctx, kind, true)
		if err != nil {
			return info, err
		}
		switch kind {
		case KindFile:
			info.Files = len(live)
		case KindFolder:
			info.Folders = len(live)
		case KindTag:
			info.Tags = len(live)
		}
		info.Recycled += len(gone)
	}
	return info, nil
}

func (s *store) query(ctx context.Context, kind string, filters spi.Filter) ([]spi.Record, error) {
	deleted := false
	if v, ok := filters[spi.FilterDeleted].(bool); ok {
		deleted = v
	}
	recs, err := s.b.list(ctx, kind, deleted)
	if err != nil {
		return nil, err
	}
	out := make([]spi.Record, 0, len(recs))
	for _, r := range recs {
		if matches(r, filters) {
			out = append(out, r)
		}
	}
	return out, nil
}

func matches(r spi.Record, filters spi.Filter) bool {
	for k, want := range filters {
		if k == spi.FilterDeleted {
			continue
		}
		got, ok := r[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func (s *store) create(ctx context.Context, kind string, data spi.Record) (spi.Record, error) {
	rec := make(spi.Record, len(data)+3)
	for k, v := range data {
		rec[k] = v
	}
	id := rec.ID()
	if id == "" {
		id = uuid.NewString()
	}
	if _, found, err := s.b.get(ctx, kind, id); err != nil {
		return nil, err
	} else if found {
		return nil, fmt.Errorf("%s %s already exists", kind, id)
	}
	ts := now()
	rec[fieldID] = id
	rec[fieldCreatedAt] = ts
	rec[fieldUpdatedAt] = ts
	delete(rec, fieldDeletedAt)
	if err := s.b.insert(ctx, kind, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *store) update(ctx context.Context, kind, id string, patch spi.Record) (bool, error) {
	rec, found, err := s.b.get(ctx, kind, id)
	if err != nil || !found || isDeleted(rec) {
		return false, err
	}
	for k, v := range patch {
		switch k {
		case fieldID, fieldCreatedAt, fieldDeletedAt:
			continue
		}
		rec[k] = v
	}
	rec[fieldUpdatedAt] = now()
	return true, s.b.put(ctx, kind, id, rec, false)
}

func (s *store) remove(ctx context.Context, kind, id string, opts spi.DeleteOptions) (bool, error) {
	rec, found, err := s.b.get(ctx, kind, id)
	if err != nil || !found {
		return false, err
	}
	if !opts.MoveToRecycleBin {
		return true, s.b.erase(ctx, kind, id)
	}
	if isDeleted(rec) {
		return false, nil
	}
	rec[fieldDeletedAt] = now()
	return true, s.b.put(ctx, kind, id, rec, true)
}

func (s *store) recover(ctx context.Context, kind, id string) (bool, error) {
	rec, found, err := s.b.get(ctx, kind, id)
	if err != nil || !found || !isDeleted(rec) {
		return false, err
	}
	delete(rec, fieldDeletedAt)
	rec[fieldUpdatedAt] = now()
	return true, s.b.put(ctx, kind, id, rec, false)
}

func isDeleted(r spi.Record) bool {
	_, ok := r[fieldDeletedAt]
	return ok
}

func (s *store) GetFiles(ctx context.Context, f spi.Filter) ([]spi.Record, error) {
	return s.query(ctx, KindFile, f)
}

func (s *store) CreateFile(ctx context.Context, data spi.Record) (spi.Record, error) {
	return s.create(ctx, KindFile, data)
}

// CreateFileFromPath creates a file record describing path. The file itself is
// not read; name and extension are derived from the path.
func (s *store) CreateFileFromPath(ctx context.Context, p string, data spi.Record) (spi.Record, error) {
	if strings.TrimSpace(p) == "" {
		return nil, fmt.Errorf("empty path")
	}
	rec := spi.Record{}
	for k, v := range data {
		rec[k] = v
	}
	clean := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	rec["path"] = clean
	if _, ok := rec["name"]; !ok {
		rec["name"] = path.Base(clean)
	}
	if _, ok := rec["ext"]; !ok {
		rec["ext"] = strings.TrimPrefix(path.Ext(clean), ".")
	}
	return s.create(ctx, KindFile, rec)
}

func (s *store) UpdateFile(ctx context.Context, id string, patch spi.Record) (bool, error) {
	return s.update(ctx, KindFile, id, patch)
}

func (s *store) DeleteFile(ctx context.Context, id string, opts spi.DeleteOptions) (bool, error) {
	return s.remove(ctx, KindFile, id, opts)
}

func (s *store) RecoverFile(ctx context.Context, id string) (bool, error) {
	return s.recover(ctx, KindFile, id)
}

func (s *store) GetFolders(ctx context.Context, f spi.Filter) ([]spi.Record, error) {
	return s.query(ctx, KindFolder, f)
}

func (s *store) CreateFolder(ctx context.Context, data spi.Record) (spi.Record, error) {
	return s.create(ctx, KindFolder, data)
}

func (s *store) UpdateFolder(ctx context.Context, id string, patch spi.Record) (bool, error) {
	return s.update(ctx, KindFolder, id, patch)
}

func (s *store) DeleteFolder(ctx context.Context, id string, opts spi.DeleteOptions) (bool, error) {
	return s.remove(ctx, KindFolder, id, opts)
}

func (s *store) RecoverFolder(ctx context.Context, id string) (bool, error) {
	return s.recover(ctx, KindFolder, id)
}

func (s *store) GetTags(ctx context.Context, f spi.Filter) ([]spi.Record, error) {
	return s.query(ctx, KindTag, f)
}

func (s *store) CreateTag(ctx context.Context, data spi.Record) (spi.Record, error) {
	return s.create(ctx, KindTag, data)
}

func (s *store) UpdateTag(ctx context.Context, id string, patch spi.Record) (bool, error) {
	return s.update(ctx, KindTag, id, patch)
}

func (s *store) DeleteTag(ctx context.Context, id string, opts spi.DeleteOptions) (bool, error) {
	return s.remove(ctx, KindTag, id, opts)
}

func (s *store) RecoverTag(ctx context.Context, id string) (bool, error) {
	return s.recover(ctx, KindTag, id)
}
