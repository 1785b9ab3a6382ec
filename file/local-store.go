package file

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/aws/s3"
)

// LocalStore implements ObjectStore on the local filesystem where keys are file paths.
type LocalStore struct{}

func NewLocalStore() *LocalStore {
	return &LocalStore{}
}

// List walks the directory named by prefix, or the parent directory of a partial file name,
// and returns the sorted paths of all regular files found.
// A missing directory yields no keys.
func (s *LocalStore) List(ctx context.Context, prefix string) (keys []string, err error) {
	root := prefix
	filter := ""
	if root == "" {
		root = "."
	} else if fi, statErr := os.Stat(root); statErr != nil || !fi.IsDir() { // if the prefix is not a directory...
		root = filepath.Dir(prefix)
		filter = prefix
	}
	err = filepath.Walk(root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			return nil
		}
		k := filepath.ToSlash(p)
		if filter != "" && !strings.HasPrefix(k, filepath.ToSlash(filter)) {
			return nil
		}
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error listing %v", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := ioutil.ReadFile(filepath.FromSlash(key))
	if os.IsNotExist(err) {
		return nil, s3.ErrKeyNotFound
	}
	return data, errors.Wrapf(err, "error reading %v", key)
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	p := filepath.FromSlash(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return errors.Wrapf(err, "error creating directory for %v", key)
	}
	// Write then rename; readers never see a partial object.
	tmp := p + ".tmp"
	if err := ioutil.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "error writing %v", key)
	}
	return errors.Wrapf(os.Rename(tmp, p), "error renaming %v", tmp)
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.FromSlash(key))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "error deleting %v", key)
}

func (s *LocalStore) DeletePrefix(ctx context.Context, prefix string) (n int, err error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err = s.Delete(ctx, k); err != nil {
			return n, err
		}
		n++
	}
	return
}
