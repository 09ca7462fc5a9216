package topic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"toppers-pipeline/storage"
	"toppers-pipeline/types"
)

const appendAttempts = 3

// HistoryStore persists the rolling window of recently used topics as a
// JSON array, newest first.
type HistoryStore struct {
	store  storage.Store
	object string
	window int
	now    func() time.Time
}

// NewHistoryStore keeps the last window entries in object on store
func NewHistoryStore(store storage.Store, object string, window int) *HistoryStore {
	return &HistoryStore{store: store, object: object, window: window, now: time.Now}
}

// Load returns the current history. A missing or unreadable document yields
// an empty record; only an unreachable store is an error.
func (h *HistoryStore) Load(ctx context.Context) (types.HistoryRecord, error) {
	rec, _, err := h.load(ctx)
	return rec, err
}

func (h *HistoryStore) load(ctx context.Context) (types.HistoryRecord, int64, error) {
	obj, err := h.store.Get(ctx, h.object)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info("Topic history does not exist yet, starting fresh")
		return types.HistoryRecord{}, 0, nil
	}
	if err != nil {
		return types.HistoryRecord{}, 0, fmt.Errorf("load topic history: %w", err)
	}

	var entries []types.HistoryEntry
	if len(bytes.TrimSpace(obj.Data)) > 0 {
		if err := json.Unmarshal(obj.Data, &entries); err != nil {
			log.WithError(err).Warn("Failed to parse topic history, starting fresh")
			entries = nil
		}
	}
	if len(entries) > h.window {
		entries = entries[:h.window]
	}
	log.WithField("count", len(entries)).Info("Loaded topic history")
	return types.HistoryRecord{Entries: entries}, obj.Generation, nil
}

// Append records topic at the head of the window. The write is conditional on
// the generation that was read, and retried when another run got there first.
func (h *HistoryStore) Append(ctx context.Context, t types.Topic) error {
	var lastErr error
	for attempt := 1; attempt <= appendAttempts; attempt++ {
		rec, gen, err := h.load(ctx)
		if err != nil {
			return err
		}

		entries := h.prepend(rec, t)
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal topic history: %w", err)
		}

		_, err = h.store.Put(ctx, h.object, bytes.NewReader(data), storage.PutOptions{
			ContentType:  "application/json",
			Conditional:  true,
			IfGeneration: gen,
		})
		if err == nil {
			log.WithField("count", len(entries)).Infof("Added %q to topic history", t.Title)
			return nil
		}
		if !errors.Is(err, types.ErrConflict) {
			return fmt.Errorf("save topic history: %w", err)
		}
		log.WithField("attempt", attempt).Warn("Topic history changed concurrently, retrying")
		lastErr = err
	}
	return fmt.Errorf("save topic history after %d attempts: %w", appendAttempts, lastErr)
}

func (h *HistoryStore) prepend(rec types.HistoryRecord, t types.Topic) []types.HistoryEntry {
	entries := make([]types.HistoryEntry, 0, h.window)
	entries = append(entries, types.HistoryEntry{
		Title:    t.Title,
		Category: t.Category,
		AddedAt:  h.now().UTC().Format(time.RFC3339),
	})
	norm := types.NormalizeTitle(t.Title)
	for _, e := range rec.Entries {
		if len(entries) == h.window {
			break
		}
		if types.NormalizeTitle(e.Title) == norm {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}
