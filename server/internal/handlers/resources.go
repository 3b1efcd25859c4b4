package handlers

import (
	"context"
	"fmt"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

// Resource types and verbs.
const (
	ResourceFile    = "file"
	ResourceFolder  = "folder"
	ResourceTag     = "tag"
	ResourceLibrary = "library"

	VerbList           = "list"
	VerbCreate         = "create"
	VerbCreateFromPath = "createFromPath"
	VerbUpdate         = "update"
	VerbDelete         = "delete"
	VerbRecover        = "recover"
	VerbInfo           = "info"
)

// collection is the store surface shared by files, folders and tags.
type collection struct {
	list    func(context.Context, spi.Filter) ([]spi.Record, error)
	create  func(context.Context, spi.Record) (spi.Record, error)
	update  func(context.Context, string, spi.Record) (bool, error)
	remove  func(context.Context, string, spi.DeleteOptions) (bool, error)
	recover func(context.Context, string) (bool, error)
}

func files(s spi.Store) collection {
	return collection{s.GetFiles, s.CreateFile, s.UpdateFile, s.DeleteFile, s.RecoverFile}
}

func folders(s spi.Store) collection {
	return collection{s.GetFolders, s.CreateFolder, s.UpdateFolder, s.DeleteFolder, s.RecoverFolder}
}

func tags(s spi.Store) collection {
	return collection{s.GetTags, s.CreateTag, s.UpdateTag, s.DeleteTag, s.RecoverTag}
}

// Default returns the table of built-in file, folder, tag and library routes.
func Default() *Table {
	t := NewTable()
	registerCollection(t, ResourceFile, files)
	registerCollection(t, ResourceFolder, folders)
	registerCollection(t, ResourceTag, tags)
	t.Register(Route{
		Resource: ResourceFile,
		Verb:     VerbCreateFromPath,
		Required: []string{"path"},
		Handle:   createFileFromPath,
	})
	t.Register(Route{
		Resource: ResourceLibrary,
		Verb:     VerbInfo,
		Handle: func(ctx context.Context, req Request) (Result, error) {
			info, err := req.Store.GetLibraryInfo(ctx)
			if err != nil {
				return Result{}, err
			}
			return Result{Data: info}, nil
		},
	})
	return t
}

func registerCollection(t *Table, resource string, of func(spi.Store) collection) {
	t.Register(Route{Resource: resource, Verb: VerbList, Handle: func(ctx context.Context, req Request) (Result, error) {
		recs, err := of(req.Store).list(ctx, filtersOf(req.Data))
		if err != nil {
			return Result{}, err
		}
		if recs == nil {
			recs = []spi.Record{}
		}
		return Result{Data: recs}, nil
	}})

	t.Register(Route{Resource: resource, Verb: VerbCreate, Handle: func(ctx context.Context, req Request) (Result, error) {
		rec, err := of(req.Store).create(ctx, spi.Record(req.Data))
		if err != nil {
			return Result{}, err
		}
		return Result{Data: rec, Event: spi.ResourceEventName(resource, "created"), Payload: rec}, nil
	}})

	t.Register(Route{Resource: resource, Verb: VerbUpdate, Required: []string{"id"}, Handle: func(ctx context.Context, req Request) (Result, error) {
		id, err := idOf(req.Data)
		if err != nil {
			return Result{}, err
		}
		patch := patchOf(req.Data)
		ok, err := of(req.Store).update(ctx, id, patch)
		if err != nil || !ok {
			return Result{Data: ok}, err
		}
		return Result{
			Data:    true,
			Event:   spi.ResourceEventName(resource, "updated"),
			Payload: map[string]any{"id": id, "patch": patch},
		}, nil
	}})

	t.Register(Route{Resource: resource, Verb: VerbDelete, Required: []string{"id"}, Handle: func(ctx context.Context, req Request) (Result, error) {
		id, err := idOf(req.Data)
		if err != nil {
			return Result{}, err
		}
		opts := spi.DeleteOptions{MoveToRecycleBin: true}
		if v, ok := req.Data["moveToRecycleBin"].(bool); ok {
			opts.MoveToRecycleBin = v
		}
		ok, err := of(req.Store).remove(ctx, id, opts)
		if err != nil || !ok {
			return Result{Data: ok}, err
		}
		return Result{
			Data:    true,
			Event:   spi.ResourceEventName(resource, "deleted"),
			Payload: map[string]any{"id": id, "moveToRecycleBin": opts.MoveToRecycleBin},
		}, nil
	}})

	t.Register(Route{Resource: resource, Verb: VerbRecover, Required: []string{"id"}, Handle: func(ctx context.Context, req Request) (Result, error) {
		id, err := idOf(req.Data)
		if err != nil {
			return Result{}, err
		}
		ok, err := of(req.Store).recover(ctx, id)
		if err != nil || !ok {
			return Result{Data: ok}, err
		}
		return Result{
			Data:    true,
			Event:   spi.ResourceEventName(resource, "recovered"),
			Payload: map[string]any{"id": id},
		}, nil
	}})
}

func createFileFromPath(ctx context.Context, req Request) (Result, error) {
	p, ok := req.Data["path"].(string)
	if !ok {
		return Result{}, fmt.Errorf("path must be a string")
	}
	data := spi.Record{}
	if extra, ok := req.Data["data"].(map[string]any); ok {
		for k, v := range extra {
			data[k] = v
		}
	} else {
		for k, v := range req.Data {
			if k != "path" {
				data[k] = v
			}
		}
	}
	rec, err := req.Store.CreateFileFromPath(ctx, p, data)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: rec, Event: spi.ResourceEventName(ResourceFile, "created"), Payload: rec}, nil
}

func idOf(data map[string]any) (string, error) {
	id := spi.IDString(data["id"])
	if id == "" {
		return "", fmt.Errorf("id must be a non-empty string or number")
	}
	return id, nil
}

// patchOf returns data["patch"] when present, otherwise every field but id.
func patchOf(data map[string]any) spi.Record {
	if p, ok := data["patch"].(map[string]any); ok {
		return spi.Record(p)
	}
	patch := spi.Record{}
	for k, v := range data {
		if k != "id" {
			patch[k] = v
		}
	}
	return patch
}

// filtersOf returns data["filters"] when present, otherwise data itself.
func filtersOf(data map[string]any) spi.Filter {
	if f, ok := data["filters"].(map[string]any); ok {
		return spi.Filter(f)
	}
	return spi.Filter(data)
}
