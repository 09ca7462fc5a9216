package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"toppers-pipeline/types"
)

// Artifacts persists per-run outputs under timestamped names
type Artifacts struct {
	store Store
}

func NewArtifacts(store Store) *Artifacts {
	return &Artifacts{store: store}
}

// ContentName is the object name of a run's text artifacts
func ContentName(ts string) string { return fmt.Sprintf("content_%s.json", ts) }

// VideoName is the object name of a run's rendered video
func VideoName(ts string) string { return fmt.Sprintf("videos_%s.mp4", ts) }

// SaveContent writes content_{ts}.json
func (a *Artifacts) SaveContent(ctx context.Context, ts string, content *types.Content) (string, error) {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal content: %w", err)
	}
	name := ContentName(ts)
	if _, err := a.store.Put(ctx, name, bytes.NewReader(data), PutOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return name, nil
}

// SaveVideo uploads the rendered mp4 as videos_{ts}.mp4
func (a *Artifacts) SaveVideo(ctx context.Context, ts, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	name := VideoName(ts)
	if _, err := a.store.Put(ctx, name, f, PutOptions{ContentType: "video/mp4"}); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	log.WithField("object", name).Info("✅ Video archived")
	return name, nil
}
