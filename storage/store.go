// Package storage is the object-storage collaborator: topic history and run
// artifacts live here.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("stage", "storage")

// ErrNotFound is returned by Get when the object does not exist
var ErrNotFound = errors.New("object not found")

// Object is a stored blob together with the generation it was read at
type Object struct {
	Data       []byte
	Generation int64
}

// PutOptions controls a write. When Conditional is set the write only
// succeeds if the stored generation equals IfGeneration; zero means the
// object must not exist yet.
type PutOptions struct {
	ContentType  string
	Conditional  bool
	IfGeneration int64
}

// Store is a flat namespace of named blobs
type Store interface {
	Get(ctx context.Context, name string) (*Object, error)
	Put(ctx context.Context, name string, r io.Reader, opts PutOptions) (int64, error)
}
