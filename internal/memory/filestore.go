package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dohr-michael/pokus/internal/storage/dirstore"
)

const (
	blobExt = ".blob"
	keyExt  = ".key" // original namespace of a hashed blob name
)

// FileStore implements Store on the filesystem.
// Structure:
//
//	<dir>/
//	  <name(user_id)>/
//	    <name(namespace)>.blob
//	    <name(namespace)>.key   (hashed names only)
//
// User ids and namespaces are opaque, so both go through dirstore.EncodeName.
// Long namespaces hash to a digest and keep their value in a .key file.
type FileStore struct {
	ds *dirstore.DirStore
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{ds: dirstore.New(dir, "user")}
}


// Save atomically replaces the payload for (userID, namespace).
func (fs *FileStore) Save(ctx context.Context, userID, namespace string, payload []byte) error {
	if err := validateKey(userID, namespace); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.ds.Lock()
	defer fs.ds.Unlock()

	user, ns := dirstore.EncodeName(userID), dirstore.EncodeName(namespace)
	if dirstore.IsDigestName(ns) {
		if err := fs.ds.WriteFileAtomic(user, ns+keyExt, []byte(namespace)); err != nil {
			return fmt.Errorf("%w: save %s/%s: %v", ErrUnavailable, userID, namespace, err)
		}
	}
	if err := fs.ds.WriteFileAtomic(user, ns+blobExt, payload); err != nil {
		return fmt.Errorf("%w: save %s/%s: %v", ErrUnavailable, userID, namespace, err)
	}
	return nil
}

// Load returns the payload for (userID, namespace), or nil if none was saved.
func (fs *FileStore) Load(ctx context.Context, userID, namespace string) ([]byte, error) {
	if err := validateKey(userID, namespace); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs.ds.RLock()
	defer fs.ds.RUnlock()

	data, err := fs.ds.ReadFile(dirstore.EncodeName(userID), dirstore.EncodeName(namespace)+blobExt)
	if err != nil {
		if errors.Is(err, dirstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: load %s/%s: %v", ErrUnavailable, userID, namespace, err)
	}
	return data, nil
}

// Namespaces lists the namespaces holding a record for userID.
func (fs *FileStore) Namespaces(_ context.Context, userID string) ([]string, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	user := dirstore.EncodeName(userID)
	entries, err := os.ReadDir(fs.ds.Dir(user))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list namespaces: %v", ErrUnavailable, err)
	}

	var result []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), blobExt)
		if e.IsDir() || !ok {
			continue
		}
		if ns, ok := dirstore.DecodeName(name); ok {
			result = append(result, ns)
			continue
		}
		if key, err := fs.ds.ReadFile(user, name+keyExt); err == nil {
			result = append(result, string(key))
		}
	}
	sort.Strings(result)
	return result, nil
}

func (fs *FileStore) Close() error { return nil }
