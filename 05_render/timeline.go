package render

import (
	"fmt"
	"strings"
	"time"

	"toppers-pipeline/config"
	"toppers-pipeline/types"
)

// BuildTimeline lays out title, the items in script order and the CTA so the
// segments exactly fill the configured duration. Every item gets at least one
// frame; the rest of the item time is shared out in proportion to narration
// word count, in whole milliseconds, with the rounding remainder on the last
// item.
func BuildTimeline(topic types.Topic, script *types.Script, video config.VideoConfig) (*types.Timeline, error) {
	n := int64(len(script.Items))
	if n == 0 {
		return nil, fmt.Errorf("script has no items")
	}
	total := video.VideoDuration().Milliseconds()
	titleMs := video.TitleDuration().Milliseconds()
	ctaMs := video.CTADuration().Milliseconds()
	budget := total - titleMs - ctaMs
	floor := frameMillis(video.FPS)
	if budget < n*floor {
		return nil, fmt.Errorf("no time left for %d items in %dms: need %dms, have %dms", n, total, n*floor, budget)
	}

	weights := make([]int64, n)
	var sum int64
	for i, it := range script.Items {
		weights[i] = int64(max(len(strings.Fields(it.Narration)), 1))
		sum += weights[i]
	}

	shared := budget - n*floor
	durations := make([]int64, n)
	var used int64
	for i, w := range weights {
		durations[i] = floor + shared*w/sum
		used += durations[i]
	}
	durations[n-1] += budget - used

	tl := &types.Timeline{Total: time.Duration(total) * time.Millisecond}
	var cursor int64
	add := func(kind types.SegmentKind, rank int, ms int64, narration string) {
		tl.Segments = append(tl.Segments, types.Segment{
			Kind:      kind,
			Rank:      rank,
			Start:     time.Duration(cursor) * time.Millisecond,
			Duration:  time.Duration(ms) * time.Millisecond,
			Narration: narration,
		})
		cursor += ms
	}

	title := topic.Title
	if script.Hook != "" {
		title = script.Hook
	}
	add(types.SegmentTitle, 0, titleMs, title)
	for i, it := range script.Items {
		add(types.SegmentItem, it.Rank, durations[i], it.Narration)
	}
	add(types.SegmentCTA, 0, ctaMs, script.CTA)
	return tl, nil
}

// frameMillis is the length of one frame rounded up to whole milliseconds
func frameMillis(fps int) int64 {
	if fps <= 0 {
		return 1
	}
	return int64((1000 + fps - 1) / fps)
}
