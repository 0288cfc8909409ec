package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dohr-michael/pokus/internal/storage/dirstore"
)

const checkpointFile = "checkpoint.json"

// FileStore persists one checkpoint.json per session directory.
// Directory names come from dirstore.EncodeName since ids are opaque client
// input; the id itself lives in the checkpoint.
type FileStore struct {
	ds *dirstore.DirStore
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{ds: dirstore.New(baseDir, "session")}
}

func dirName(id string) string {
	return dirstore.EncodeName(id)
}

func (fs *FileStore) Load(ctx context.Context, id string) (*Checkpoint, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs.ds.RLock()
	data, err := fs.ds.ReadFile(dirName(id), checkpointFile)
	fs.ds.RUnlock()
	if err != nil {
		if errors.Is(err, dirstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load checkpoint %s: %w", id, err)
	}
	return decodeCheckpoint(data)
}

func (fs *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := validateID(cp.Session.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}

	fs.ds.Lock()
	defer fs.ds.Unlock()
	if err := fs.ds.WriteFileAtomic(dirName(cp.Session.ID), checkpointFile, data); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Session.ID, err)
	}
	return nil
}

// List returns all sessions sorted by UpdatedAt descending.
func (fs *FileStore) List(_ context.Context) ([]Summary, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	dirs, err := fs.ds.ListDirs()
	if err != nil {
		return nil, err
	}

	var result []Summary
	for _, dir := range dirs {
		data, err := fs.ds.ReadFile(dir, checkpointFile)
		if err != nil {
			continue
		}
		cp, err := decodeCheckpoint(data)
		if err != nil {
			slog.Warn("skipping corrupted checkpoint", "dir", dir, "error", err)
			continue
		}
		result = append(result, cp.Summarize())
	}
	sortSummaries(result)
	return result, nil
}

func (fs *FileStore) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	fs.ds.Lock()
	defer fs.ds.Unlock()
	return fs.ds.RemoveDir(dirName(id))
}

func (fs *FileStore) Close() error { return nil }
