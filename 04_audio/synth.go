// Package audio synthesizes the narration, one clip per timeline segment.
package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	tts "google.golang.org/api/texttospeech/v1"

	"toppers-pipeline/config"
)

var log = logrus.WithField("stage", "audio")

// Synthesizer turns text into an mp3 file at outFile
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, outFile string) error
}

// FromConfig picks the configured engine
func FromConfig(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (Synthesizer, error) {
	switch cfg.Audio.Engine {
	case "google":
		return NewGoogleTTS(ctx, cfg.Audio, opts...)
	case "command":
		return NewCommand(cfg.Audio.Command)
	default:
		return nil, fmt.Errorf("unknown tts engine %q", cfg.Audio.Engine)
	}
}

// GoogleTTS uses Cloud Text-to-Speech
type GoogleTTS struct {
	svc   *tts.Service
	voice *tts.VoiceSelectionParams
	audio *tts.AudioConfig
}

func NewGoogleTTS(ctx context.Context, cfg config.AudioConfig, opts ...option.ClientOption) (*GoogleTTS, error) {
	svc, err := tts.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create tts service: %w", err)
	}
	return &GoogleTTS{
		svc:   svc,
		voice: &tts.VoiceSelectionParams{LanguageCode: cfg.LanguageCode, Name: cfg.Voice},
		audio: &tts.AudioConfig{AudioEncoding: "MP3", SpeakingRate: cfg.SpeakingRate, Pitch: cfg.Pitch},
	}, nil
}

func (g *GoogleTTS) Name() string { return "google" }

func (g *GoogleTTS) Synthesize(ctx context.Context, text, outFile string) error {
	resp, err := g.svc.Text.Synthesize(&tts.SynthesizeSpeechRequest{
		Input:       &tts.SynthesisInput{Text: text},
		Voice:       g.voice,
		AudioConfig: g.audio,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return fmt.Errorf("decode audio content: %w", err)
	}
	return os.WriteFile(outFile, data, 0644)
}

// Command shells out to an external TTS program. The program must accept
// --text "..." --output path.mp3; edge-tts is driven with its own flags.
type Command struct {
	command string
}

// NewCommand falls back to edge-tts when command is empty
func NewCommand(command string) (*Command, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		if _, err := exec.LookPath("edge-tts"); err != nil {
			return nil, fmt.Errorf("no TTS engine found: set TTS_COMMAND or install edge-tts (pip install edge-tts)")
		}
		command = "edge-tts"
		log.Info("Using edge-tts as TTS engine (fallback)")
	}
	return &Command{command: command}, nil
}

func (c *Command) Name() string { return "command" }

func (c *Command) Synthesize(ctx context.Context, text, outFile string) error {
	var cmd *exec.Cmd
	switch {
	case c.command == "edge-tts":
		cmd = exec.CommandContext(ctx, "edge-tts",
			"--voice", "en-US-GuyNeural",
			"--rate", "-5%",
			"--text", text,
			"--write-media", outFile,
		)
	case strings.HasSuffix(c.command, ".py"):
		cmd = exec.CommandContext(ctx, "python3", c.command, "--text", text, "--output", outFile)
	default:
		cmd = exec.CommandContext(ctx, c.command, "--text", text, "--output", outFile)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", c.command, err, strings.TrimSpace(string(out)))
	}
	return nil
}
