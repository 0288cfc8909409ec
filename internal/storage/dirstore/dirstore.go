// Package dirstore provides directory-per-entity file primitives shared by
// the file-backed checkpoint and memory stores.
package dirstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when an entity file does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidID is returned for ids that would escape the base directory.
var ErrInvalidID = errors.New("invalid id")

// DirStore roots a set of entities under baseDir. Each entity gets its own
// subdirectory holding one or more named files.
type DirStore struct {
	mu         sync.RWMutex
	baseDir    string
	entityName string // for error messages: "session", "user"
}

// New creates a DirStore rooted at baseDir.
func New(baseDir, entityName string) *DirStore {
	return &DirStore{baseDir: baseDir, entityName: entityName}
}

func (ds *DirStore) Lock()    { ds.mu.Lock() }
func (ds *DirStore) Unlock()  { ds.mu.Unlock() }
func (ds *DirStore) RLock()   { ds.mu.RLock() }
func (ds *DirStore) RUnlock() { ds.mu.RUnlock() }

// BaseDir returns the root directory.
func (ds *DirStore) BaseDir() string { return ds.baseDir }

// ValidateID rejects empty ids and ids containing path separators or dot segments.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Dir returns the directory path for a given entity ID.
func (ds *DirStore) Dir(id string) string {
	return filepath.Join(ds.baseDir, id)
}

// FilePath returns the path to a named file within an entity's directory.
func (ds *DirStore) FilePath(id, name string) string {
	return filepath.Join(ds.baseDir, id, name)
}

// EnsureDir creates the entity directory (and parents) if it doesn't exist.
func (ds *DirStore) EnsureDir(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.MkdirAll(ds.Dir(id), 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", ds.entityName, err)
	}
	return nil
}

// RemoveDir removes the entity directory and all its contents.
// Removing a missing entity is not an error.
func (ds *DirStore) RemoveDir(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.RemoveAll(ds.Dir(id)); err != nil {
		return fmt.Errorf("remove %s dir: %w", ds.entityName, err)
	}
	return nil
}

// ListDirs returns the names of all subdirectories in baseDir.
func (ds *DirStore) ListDirs() ([]string, error) {
	entries, err := os.ReadDir(ds.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %ss dir: %w", ds.entityName, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// ModTime returns the last modification time of a named file.
func (ds *DirStore) ModTime(id, name string) (time.Time, error) {
	info, err := os.Stat(ds.FilePath(id, name))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, fmt.Errorf("%s %s: %w", ds.entityName, id, ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return info.ModTime(), nil
}

// WriteJSON atomically writes v as indented JSON to the named file.
func (ds *DirStore) WriteJSON(id, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return ds.WriteFileAtomic(id, name, data)
}

// ReadJSON reads and unmarshals the named file into out.
// A missing file yields an error wrapping ErrNotFound.
func (ds *DirStore) ReadJSON(id, name string, out any) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	data, err := os.ReadFile(ds.FilePath(id, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s %s: %w", ds.entityName, id, ErrNotFound)
		}
		return fmt.Errorf("read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}

// WriteFileAtomic writes content to a named file using a synced tmp file + rename,
// so readers see either the previous content or the new content, never a mix.
func (ds *DirStore) WriteFileAtomic(id, name string, content []byte) error {
	if err := ds.EnsureDir(id); err != nil {
		return err
	}
	path := ds.FilePath(id, name)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s tmp: %w", name, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s tmp: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s tmp: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s tmp: %w", name, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// ReadFile reads the content of a named file.
// A missing file yields an error wrapping ErrNotFound.
func (ds *DirStore) ReadFile(id, name string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(ds.FilePath(id, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s %s: %w", ds.entityName, id, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// AppendJSONL appends a JSON-encoded line to the named file within an entity's directory.
func (ds *DirStore) AppendJSONL(id, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := ds.EnsureDir(id); err != nil {
		return err
	}

	f, err := os.OpenFile(ds.FilePath(id, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// LoadJSONL reads all JSON lines from a file, deserializing each into type T.
// Corrupted lines are skipped.
func LoadJSONL[T any](ds *DirStore, id, name string) ([]T, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	f, err := os.Open(ds.FilePath(id, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	var items []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(line, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}
	return items, nil
}
