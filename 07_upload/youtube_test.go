package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/option"

	"toppers-pipeline/config"
	"toppers-pipeline/types"
)

func newTestUploader(t *testing.T, handler http.HandlerFunc) *YouTube {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default().Upload
	y, err := NewYouTube(context.Background(), cfg,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	y.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(cfg.MaxRetries))
	}
	return y
}

func videoFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "final.mp4")
	if err := os.WriteFile(p, []byte("not really an mp4"), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

var md = &types.VideoMetadata{
	Title:       "Top 10 Rivers #Shorts",
	Description: "Top 10 Rivers",
	Tags:        []string{"top 10"},
	CategoryID:  "24",
	Visibility:  "unlisted",
}

func TestPublish(t *testing.T) {
	var body string
	y := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/upload/youtube/v3/videos") {
			t.Errorf("path = %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		json.NewEncoder(w).Encode(map[string]string{"id": "abc123"})
	})

	id, url, err := y.Publish(context.Background(), videoFile(t), md)
	if err != nil {
		t.Fatal(err)
	}
	if id != "abc123" || url != "https://www.youtube.com/watch?v=abc123" {
		t.Errorf("got %s %s", id, url)
	}
	for _, want := range []string{`"privacyStatus":"unlisted"`, `"categoryId":"24"`, "not really an mp4"} {
		if !strings.Contains(body, want) {
			t.Errorf("request body missing %s", want)
		}
	}
}

func TestPublishRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	y := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		if calls.Add(1) <= 2 {
			http.Error(w, `{"error":{"code":503,"message":"backend error"}}`, http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "xyz"})
	})

	id, _, err := y.Publish(context.Background(), videoFile(t), md)
	if err != nil {
		t.Fatal(err)
	}
	if id != "xyz" || calls.Load() < 3 {
		t.Errorf("id = %s after %d calls", id, calls.Load())
	}
}

func TestPublishFailures(t *testing.T) {
	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		y := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			calls.Add(1)
			http.Error(w, `{"error":{"code":403,"message":"quotaExceeded"}}`, http.StatusForbidden)
		})
		_, _, err := y.Publish(context.Background(), videoFile(t), md)
		if !errors.Is(err, types.ErrPublishFailure) {
			t.Fatalf("err = %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d", calls.Load())
		}
	})

	t.Run("retries are bounded", func(t *testing.T) {
		var calls atomic.Int32
		y := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			calls.Add(1)
			http.Error(w, `{"error":{"code":502}}`, http.StatusBadGateway)
		})
		_, _, err := y.Publish(context.Background(), videoFile(t), md)
		if !errors.Is(err, types.ErrPublishFailure) {
			t.Fatalf("err = %v", err)
		}
		if calls.Load() < 2 {
			t.Errorf("calls = %d", calls.Load())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		y := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		_, _, err := y.Publish(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), md)
		if !errors.Is(err, types.ErrPublishFailure) || !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestNewYouTubeNeedsCredentials(t *testing.T) {
	if _, err := NewYouTube(context.Background(), config.Default().Upload); err == nil {
		t.Fatal("expected missing credentials error")
	}
}
