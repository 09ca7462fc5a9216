package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"toppers-pipeline/types"
)

// Memory is an in-process Store, used by tests and dry runs
type Memory struct {
	mu      sync.Mutex
	objects map[string]*Object
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]*Object)}
}

func (m *Memory) Get(ctx context.Context, name string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return &Object{Data: append([]byte(nil), obj.Data...), Generation: obj.Generation}, nil
}

func (m *Memory) Put(ctx context.Context, name string, r io.Reader, opts PutOptions) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var current int64
	if obj, ok := m.objects[name]; ok {
		current = obj.Generation
	}
	if opts.Conditional && current != opts.IfGeneration {
		return 0, fmt.Errorf("%s: %w", name, types.ErrConflict)
	}
	m.objects[name] = &Object{Data: data, Generation: current + 1}
	return current + 1, nil
}

// Names lists stored object names
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	return out
}
