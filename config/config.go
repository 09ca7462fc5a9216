package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Video    VideoConfig    `yaml:"video"`
	History  HistoryConfig  `yaml:"history"`
	Topic    TopicConfig    `yaml:"topic"`
	LLM      LLMConfig      `yaml:"llm"`
	Research ResearchConfig `yaml:"research"`
	Images   ImagesConfig   `yaml:"images"`
	Audio    AudioConfig    `yaml:"audio"`
	Render   RenderConfig   `yaml:"render"`
	Upload   UploadConfig   `yaml:"upload"`
	Paths    PathsConfig    `yaml:"paths"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type VideoConfig struct {
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	FPS               int     `yaml:"fps"`
	DurationSec       float64 `yaml:"duration_sec"`
	TitleSec          float64 `yaml:"title_sec"`
	CTASec            float64 `yaml:"cta_sec"`
	ToleranceSec      float64 `yaml:"tolerance_sec"`
	KenBurnsZoom      float64 `yaml:"ken_burns_zoom_factor"`
	CRF               int     `yaml:"crf"`
	Preset            string  `yaml:"preset"`
	AudioBitrate      string  `yaml:"audio_bitrate"`
	MaxNarrationTempo float64 `yaml:"max_narration_tempo"`
}

type HistoryConfig struct {
	Backend string `yaml:"backend"` // gcs | local
	Bucket  string `yaml:"bucket"`
	Object  string `yaml:"object"`
	Window  int    `yaml:"window"`
}

type TopicConfig struct {
	MaxAttempts          int    `yaml:"max_attempts"`
	InspirationSubreddit string `yaml:"inspiration_subreddit"`
	InspirationLimit     int    `yaml:"inspiration_limit"`
	TemplateFallback     bool   `yaml:"template_fallback"`
}

type LLMConfig struct {
	Providers   []string `yaml:"providers"`
	GroqModel   string   `yaml:"groq_model"`
	GroqURL     string   `yaml:"groq_url"`
	GeminiModel string   `yaml:"gemini_model"`
	GeminiURL   string   `yaml:"gemini_url"`
	Temperature float64  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	TimeoutSec  int      `yaml:"timeout_sec"`
	GroqAPIKey  string   `yaml:"-"`
	GeminiKey   string   `yaml:"-"`
}

type ResearchConfig struct {
	MaxAttempts           int      `yaml:"max_attempts"`
	ScriptMinWords        int      `yaml:"script_min_words"`
	ScriptMaxWords        int      `yaml:"script_max_words"`
	PromptMinWords        int      `yaml:"prompt_min_words"`
	PromptMaxWords        int      `yaml:"prompt_max_words"`
	VisualContextMaxWords int      `yaml:"visual_context_max_words"`
	PromptStyleWords      []string `yaml:"prompt_style_words"`
}

type ImagesConfig struct {
	Providers        []string `yaml:"providers"`
	MaxRetries       int      `yaml:"max_retries"`
	InitialBackoffMs int      `yaml:"initial_backoff_ms"`
	MaxBackoffMs     int      `yaml:"max_backoff_ms"`
	TimeoutSec       int      `yaml:"timeout_sec"`
	MaxConcurrency   int      `yaml:"max_concurrency"`
	MinGenerated     int      `yaml:"min_generated"`
	OpenAIAPIKey     string   `yaml:"-"`
	StabilityAPIKey  string   `yaml:"-"`
}

type AudioConfig struct {
	Engine       string  `yaml:"engine"` // google | command
	Command      string  `yaml:"command"`
	LanguageCode string  `yaml:"language_code"`
	Voice        string  `yaml:"voice"`
	SpeakingRate float64 `yaml:"speaking_rate"`
	Pitch        float64 `yaml:"pitch"`
	Attempts     int     `yaml:"attempts"`
}

type RenderConfig struct {
	MusicDir        string  `yaml:"music_dir"`
	MusicTags       string  `yaml:"music_tags"`
	MusicUsageLog   string  `yaml:"music_usage_log"`
	MusicGain       float64 `yaml:"music_gain"`
	Captions        bool    `yaml:"captions"`
	CaptionWords    int     `yaml:"caption_words"`
	CaptionFont     string  `yaml:"caption_font"`
	CaptionFontSize int     `yaml:"caption_font_size"`
	CaptionMarginV  int     `yaml:"caption_margin_v"`
}

type UploadConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Visibility        string `yaml:"visibility"`
	CategoryID        string `yaml:"category_id"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	DefaultLanguage   string `yaml:"default_language"`
	TitleMaxChars     int    `yaml:"title_max_chars"`
	MaxRetries        int    `yaml:"max_retries"`
	ClientID          string `yaml:"-"`
	ClientSecret      string `yaml:"-"`
	RefreshToken      string `yaml:"-"`
}

type PathsConfig struct {
	Output   string `yaml:"output"`
	Slides   string `yaml:"slides"`
	Videos   string `yaml:"videos"`
	Work     string `yaml:"work"`
	History  string `yaml:"history"`
	RunLogDB string `yaml:"run_log_db"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the production defaults: a 60 second 1080x1920 short at 30fps.
func Default() Config {
	return Config{
		Video: VideoConfig{
			Width:             1080,
			Height:            1920,
			FPS:               30,
			DurationSec:       60,
			TitleSec:          3,
			CTASec:            3,
			ToleranceSec:      0.5,
			KenBurnsZoom:      1.08,
			CRF:               22,
			Preset:            "medium",
			AudioBitrate:      "192k",
			MaxNarrationTempo: 2.0,
		},
		History: HistoryConfig{
			Backend: "gcs",
			Bucket:  "toppers-videos",
			Object:  "topic_history.json",
			Window:  30,
		},
		Topic: TopicConfig{
			MaxAttempts:          5,
			InspirationSubreddit: "todayilearned",
			InspirationLimit:     10,
		},
		LLM: LLMConfig{
			Providers:   []string{"groq", "gemini"},
			GroqModel:   "llama-3.3-70b-versatile",
			GroqURL:     "https://api.groq.com/openai/v1/chat/completions",
			GeminiModel: "gemini-2.5-flash",
			GeminiURL:   "https://generativelanguage.googleapis.com/v1beta/models",
			Temperature: 0.8,
			MaxTokens:   4096,
			TimeoutSec:  60,
		},
		Research: ResearchConfig{
			MaxAttempts:           2,
			ScriptMinWords:        140,
			ScriptMaxWords:        160,
			PromptMinWords:        10,
			PromptMaxWords:        15,
			VisualContextMaxWords: 8,
			PromptStyleWords:      []string{"cinematic", "photography", "vertical", "composition", "golden", "hour", "lighting", "ultra", "detailed"},
		},
		Images: ImagesConfig{
			Providers:        []string{"pollinations", "dalle", "stability", "wikipedia"},
			MaxRetries:       2,
			InitialBackoffMs: 2000,
			MaxBackoffMs:     15000,
			TimeoutSec:       90,
			MaxConcurrency:   3,
			MinGenerated:     1,
		},
		Audio: AudioConfig{
			Engine:       "google",
			LanguageCode: "en-US",
			Voice:        "en-US-Neural2-D",
			SpeakingRate: 0.95,
			Pitch:        -2.0,
			Attempts:     3,
		},
		Render: RenderConfig{
			MusicDir:        "assets/music",
			MusicTags:       "assets/music/tags.json",
			MusicUsageLog:   "logs/music_usage.json",
			MusicGain:       0.15,
			Captions:        true,
			CaptionWords:    4,
			CaptionFont:     "Arial",
			CaptionFontSize: 14,
			CaptionMarginV:  60,
		},
		Upload: UploadConfig{
			Enabled:         true,
			Visibility:      "public",
			CategoryID:      "24",
			DefaultLanguage: "en",
			TitleMaxChars:   100,
			MaxRetries:      10,
		},
		Paths: PathsConfig{
			Output:   "output",
			Slides:   "slides",
			Videos:   "videos",
			Work:     "work",
			History:  "history",
			RunLogDB: "logs/runs.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads config.yaml over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		logrus.WithField("path", path).Info("No config file found, using defaults")
	default:
		return nil, err
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.LLM.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	c.LLM.GeminiKey = os.Getenv("GEMINI_API_KEY")
	c.Images.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.Images.StabilityAPIKey = os.Getenv("STABILITY_API_KEY")
	c.Upload.ClientID = os.Getenv("YOUTUBE_CLIENT_ID")
	c.Upload.ClientSecret = os.Getenv("YOUTUBE_CLIENT_SECRET")
	c.Upload.RefreshToken = os.Getenv("YOUTUBE_REFRESH_TOKEN")

	if v := os.Getenv("GCP_BUCKET_NAME"); v != "" {
		c.History.Bucket = v
	}
	if v := os.Getenv("TTS_COMMAND"); v != "" {
		c.Audio.Command = v
	}
	if v := os.Getenv("YOUTUBE_PRIVACY"); v != "" {
		c.Upload.Visibility = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the bounds every stage relies on
func (c *Config) Validate() error {
	v := c.Video
	if v.Width <= 0 || v.Height <= 0 || v.FPS <= 0 {
		return fmt.Errorf("config: video resolution and fps must be positive")
	}
	if v.DurationSec <= v.TitleSec+v.CTASec {
		return fmt.Errorf("config: video.duration_sec %.1f leaves no time for items", v.DurationSec)
	}
	if c.History.Window <= 0 {
		return fmt.Errorf("config: history.window must be positive")
	}
	if c.Topic.MaxAttempts <= 0 {
		return fmt.Errorf("config: topic.max_attempts must be positive")
	}
	r := c.Research
	if r.ScriptMinWords <= 0 || r.ScriptMinWords > r.ScriptMaxWords {
		return fmt.Errorf("config: invalid script word range %d-%d", r.ScriptMinWords, r.ScriptMaxWords)
	}
	if r.PromptMinWords <= 0 || r.PromptMinWords > r.PromptMaxWords {
		return fmt.Errorf("config: invalid prompt word range %d-%d", r.PromptMinWords, r.PromptMaxWords)
	}
	if len(c.Images.Providers) == 0 {
		return fmt.Errorf("config: at least one image provider is required")
	}
	if c.Images.MaxConcurrency <= 0 {
		c.Images.MaxConcurrency = 1
	}
	if c.Images.TimeoutSec <= 0 {
		return fmt.Errorf("config: images.timeout_sec must be positive")
	}
	if c.Images.MaxRetries < 0 {
		return fmt.Errorf("config: images.max_retries must not be negative")
	}
	if v.ToleranceSec < 0 {
		return fmt.Errorf("config: video.tolerance_sec must not be negative")
	}
	switch strings.ToLower(c.History.Backend) {
	case "gcs", "local":
	default:
		return fmt.Errorf("config: unknown history backend %q", c.History.Backend)
	}
	return nil
}

// VideoDuration is the exact target length of the rendered video
func (v VideoConfig) VideoDuration() time.Duration {
	return seconds(v.DurationSec)
}

// TitleDuration is the fixed length of the opening title segment
func (v VideoConfig) TitleDuration() time.Duration {
	return seconds(v.TitleSec)
}

// CTADuration is the fixed length of the closing call-to-action segment
func (v VideoConfig) CTADuration() time.Duration {
	return seconds(v.CTASec)
}

// Tolerance is the accepted deviation of the rendered duration
func (v VideoConfig) Tolerance() time.Duration {
	return seconds(v.ToleranceSec)
}

// InitialBackoff is the first wait between image provider retries
func (i ImagesConfig) InitialBackoff() time.Duration {
	return time.Duration(i.InitialBackoffMs) * time.Millisecond
}

// MaxBackoff caps the wait between image provider retries
func (i ImagesConfig) MaxBackoff() time.Duration {
	return time.Duration(i.MaxBackoffMs) * time.Millisecond
}

// Timeout is the per-call deadline for one provider request
func (i ImagesConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSec) * time.Second
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Millisecond)
}
