package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"toppers-pipeline/types"
)

// Narrator synthesizes one utterance per timeline segment
type Narrator struct {
	synth    Synthesizer
	prober   Prober
	attempts int
	wait     time.Duration
}

func NewNarrator(synth Synthesizer, prober Prober, attempts int) *Narrator {
	return &Narrator{synth: synth, prober: prober, attempts: max(attempts, 1), wait: 2 * time.Second}
}

// Narrate writes seg_{nn}_{kind}.mp3 files into dir, in timeline order
func (n *Narrator) Narrate(ctx context.Context, segments []types.Segment, dir string) ([]types.Utterance, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	log.Infof("Generating narration for %d segments with %s", len(segments), n.synth.Name())

	out := make([]types.Utterance, 0, len(segments))
	for i, seg := range segments {
		text := CleanText(seg.Narration)
		if text == "" {
			return nil, fmt.Errorf("segment %d (%s): empty narration", i, seg.Kind)
		}
		file := filepath.Join(dir, fmt.Sprintf("seg_%02d_%s.mp3", i, seg.Kind))

		b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(n.wait), uint64(n.attempts-1)), ctx)
		err := backoff.RetryNotify(func() error {
			return n.synth.Synthesize(ctx, text, file)
		}, b, func(err error, wait time.Duration) {
			log.WithError(err).WithField("segment", i).Warn("TTS attempt failed, retrying")
		})
		if err != nil {
			return nil, fmt.Errorf("segment %d TTS failed: %w", i, err)
		}

		dur, err := n.prober.Duration(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("segment %d duration: %w", i, err)
		}
		log.WithField("segment", i).Debugf("%.2fs → %s", dur.Seconds(), file)
		out = append(out, types.Utterance{Path: file, Duration: dur})
	}

	log.Infof("✅ Narration ready: %d clips", len(out))
	return out, nil
}

var (
	mdLink   = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdMarks  = regexp.MustCompile("[*_#`]+")
	bareURLs = regexp.MustCompile(`https?://\S+`)
)

// CleanText makes text safe to speak: markdown links keep their label, URLs
// and emphasis marks go, non-ASCII is dropped and whitespace collapsed.
func CleanText(s string) string {
	s = mdLink.ReplaceAllString(s, "$1")
	s = bareURLs.ReplaceAllString(s, "")
	s = mdMarks.ReplaceAllString(s, "")

	var sb strings.Builder
	for _, r := range s {
		if r < 128 {
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
