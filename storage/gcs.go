package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"

	"toppers-pipeline/types"
)

// GCS stores blobs in a Google Cloud Storage bucket
type GCS struct {
	svc    *gcs.Service
	bucket string
}

// NewGCS connects with application default credentials unless opts say otherwise
func NewGCS(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCS, error) {
	opts = append([]option.ClientOption{option.WithScopes(gcs.DevstorageReadWriteScope)}, opts...)
	svc, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w: %v", types.ErrStorageUnavailable, err)
	}
	log.WithField("bucket", bucket).Info("Initialized object storage")
	return &GCS{svc: svc, bucket: bucket}, nil
}

func (g *GCS) Get(ctx context.Context, name string) (*Object, error) {
	resp, err := g.svc.Objects.Get(g.bucket, name).Context(ctx).Download()
	if err != nil {
		return nil, g.wrap(name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w: %v", g.bucket, name, types.ErrStorageUnavailable, err)
	}
	gen, _ := strconv.ParseInt(resp.Header.Get("X-Goog-Generation"), 10, 64)
	return &Object{Data: data, Generation: gen}, nil
}

func (g *GCS) Put(ctx context.Context, name string, r io.Reader, opts PutOptions) (int64, error) {
	obj := &gcs.Object{Name: name, ContentType: opts.ContentType}
	call := g.svc.Objects.Insert(g.bucket, obj).Media(r).Context(ctx)
	if opts.Conditional {
		call = call.IfGenerationMatch(opts.IfGeneration)
	}
	out, err := call.Do()
	if err != nil {
		return 0, g.wrap(name, err)
	}
	return out.Generation, nil
}

func (g *GCS) wrap(name string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("gs://%s/%s: %w", g.bucket, name, ErrNotFound)
		case http.StatusPreconditionFailed:
			return fmt.Errorf("gs://%s/%s: %w", g.bucket, name, types.ErrConflict)
		}
	}
	return fmt.Errorf("gs://%s/%s: %w: %v", g.bucket, name, types.ErrStorageUnavailable, err)
}
