package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"toppers-pipeline/types"
)

// Local keeps blobs as files under a directory. Generations live in a
// sidecar file next to each blob.
type Local struct {
	dir string
	mu  sync.Mutex
}

// NewLocal stores objects as files under dir, creating it if needed
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w: %v", dir, types.ErrStorageUnavailable, err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Get(ctx context.Context, name string) (*Object, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", name, types.ErrStorageUnavailable, err)
	}
	return &Object{Data: data, Generation: l.generation(name)}, nil
}

func (l *Local) Put(ctx context.Context, name string, r io.Reader, opts PutOptions) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.generation(name)
	if opts.Conditional && current != opts.IfGeneration {
		return 0, fmt.Errorf("%s: generation %d, want %d: %w", name, current, opts.IfGeneration, types.ErrConflict)
	}

	dst := l.path(name)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("%s: %w: %v", name, types.ErrStorageUnavailable, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", name, types.ErrStorageUnavailable, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	tmp.Close()
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("%s: %w: %v", name, types.ErrStorageUnavailable, err)
	}

	next := current + 1
	if err := os.WriteFile(dst+".gen", []byte(strconv.FormatInt(next, 10)), 0644); err != nil {
		return 0, fmt.Errorf("%s: %w: %v", name, types.ErrStorageUnavailable, err)
	}
	return next, nil
}

// generation is 0 for a missing object
func (l *Local) generation(name string) int64 {
	b, err := os.ReadFile(l.path(name) + ".gen")
	if err != nil {
		if _, statErr := os.Stat(l.path(name)); statErr == nil {
			return 1
		}
		return 0
	}
	n, _ := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	return n
}

func (l *Local) path(name string) string {
	return filepath.Join(l.dir, filepath.FromSlash(name))
}
