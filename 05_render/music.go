package render

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"toppers-pipeline/config"
	"toppers-pipeline/types"
)

// MusicPicker chooses a background track from the music library. tags.json
// maps file name to tags; files whose key starts with "_" are ignored.
type MusicPicker struct {
	dir      string
	tags     map[string][]string
	usageLog string
	pick     func(n int) int
}

type musicUsage struct {
	File   string `json:"file"`
	UsedAt string `json:"used_at"`
	Topic  string `json:"topic"`
}

// NewMusicPicker loads the tag index. A missing index yields an empty library.
func NewMusicPicker(cfg config.RenderConfig) (*MusicPicker, error) {
	tags, err := loadTagsJSON(cfg.MusicTags)
	if err != nil {
		return nil, fmt.Errorf("load music tags: %w", err)
	}
	return &MusicPicker{dir: cfg.MusicDir, tags: tags, usageLog: cfg.MusicUsageLog, pick: rand.IntN}, nil
}

// Pick returns the path of the best track for topic, or "" when the library is
// empty. The track used by the previous run is skipped when there is a choice.
func (m *MusicPicker) Pick(topic types.Topic) string {
	if len(m.tags) == 0 {
		return ""
	}
	usage := m.loadUsage()
	last := ""
	if len(usage) > 0 {
		last = usage[0].File
	}

	want := categoryWords(topic.Category)
	type scored struct {
		file  string
		score int
	}
	var candidates []scored
	for file, tags := range m.tags {
		if file == last && len(m.tags) > 1 {
			continue
		}
		candidates = append(candidates, scored{file, matchScore(want, tags)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].file < candidates[j].file
	})

	// pick among the best few so the same track does not always win
	top := 1
	for top < len(candidates) && top < 3 && candidates[top].score == candidates[0].score {
		top++
	}
	choice := candidates[m.pick(top)]

	usage = append([]musicUsage{{File: choice.file, UsedAt: time.Now().UTC().Format(time.RFC3339), Topic: topic.Title}}, usage...)
	if len(usage) > 50 {
		usage = usage[:50]
	}
	m.saveUsage(usage)

	log.WithField("score", choice.score).Infof("Music: %s", choice.file)
	return filepath.Join(m.dir, choice.file)
}

func categoryWords(c types.Category) []string {
	return strings.FieldsFunc(strings.ToLower(string(c)), func(r rune) bool { return !unicode.IsLetter(r) })
}

func matchScore(want, tags []string) int {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[strings.ToLower(t)] = true
	}
	score := 0
	for _, w := range want {
		if set[w] {
			score += 10
		}
	}
	return score
}

func loadTagsJSON(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("Music tags not found at %s, videos will have narration only", path)
			return map[string][]string{}, nil
		}
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	result := make(map[string][]string)
	for k, v := range raw {
		if strings.HasPrefix(k, "_") {
			continue
		}
		var tags []string
		if err := json.Unmarshal(v, &tags); err != nil {
			continue
		}
		result[k] = tags
	}
	return result, nil
}

func (m *MusicPicker) loadUsage() []musicUsage {
	var usage []musicUsage
	data, err := os.ReadFile(m.usageLog)
	if err != nil {
		return nil
	}
	_ = json.Unmarshal(data, &usage)
	return usage
}

func (m *MusicPicker) saveUsage(usage []musicUsage) {
	if m.usageLog == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.usageLog), 0755); err != nil {
		log.WithError(err).Warn("Could not create music usage dir")
		return
	}
	data, _ := json.MarshalIndent(usage, "", "  ")
	if err := os.WriteFile(m.usageLog, data, 0644); err != nil {
		log.WithError(err).Warn("Could not save music usage log")
	}
}
