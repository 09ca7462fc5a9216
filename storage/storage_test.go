package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"toppers-pipeline/types"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Store{"memory": NewMemory(), "local": local}
}

func TestStoreGetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "nope.json")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("got %v", err)
			}
		})
	}
}

func TestStoreConditionalPut(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			gen, err := s.Put(ctx, "h.json", strings.NewReader("a"), PutOptions{Conditional: true, IfGeneration: 0})
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			// object exists now, so "must not exist" fails
			_, err = s.Put(ctx, "h.json", strings.NewReader("b"), PutOptions{Conditional: true, IfGeneration: 0})
			if !errors.Is(err, types.ErrConflict) {
				t.Fatalf("expected conflict, got %v", err)
			}

			if _, err := s.Put(ctx, "h.json", strings.NewReader("c"), PutOptions{Conditional: true, IfGeneration: gen}); err != nil {
				t.Fatalf("matching generation: %v", err)
			}
			obj, err := s.Get(ctx, "h.json")
			if err != nil {
				t.Fatal(err)
			}
			if string(obj.Data) != "c" || obj.Generation == gen {
				t.Fatalf("obj = %q gen %d", obj.Data, obj.Generation)
			}

			if _, err := s.Put(ctx, "h.json", strings.NewReader("d"), PutOptions{}); err != nil {
				t.Fatalf("unconditional: %v", err)
			}
		})
	}
}

func TestArtifacts(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	a := NewArtifacts(mem)

	content := &types.Content{Topic: types.Topic{Title: "Top 10 Rivers", Category: types.CategoryNature}}
	name, err := a.SaveContent(ctx, "20240101_120000", content)
	if err != nil {
		t.Fatal(err)
	}
	if name != "content_20240101_120000.json" {
		t.Errorf("name = %s", name)
	}
	obj, _ := mem.Get(ctx, name)
	var back types.Content
	if err := json.Unmarshal(obj.Data, &back); err != nil || back.Topic.Title != "Top 10 Rivers" {
		t.Fatalf("round trip: %v %+v", err, back)
	}

	video := filepath.Join(t.TempDir(), "final.mp4")
	os.WriteFile(video, []byte("mp4"), 0644)
	name, err = a.SaveVideo(ctx, "20240101_120000", video)
	if err != nil || name != "videos_20240101_120000.mp4" {
		t.Fatalf("SaveVideo = %s, %v", name, err)
	}
}
