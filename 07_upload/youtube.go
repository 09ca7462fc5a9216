package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"toppers-pipeline/config"
	"toppers-pipeline/types"
)

var log = logrus.WithField("stage", "upload")

const chunkSize = 8 << 20

var errNoVideoID = errors.New("upload response has no video id")

// Publisher pushes a finished video to the hosting platform
type Publisher interface {
	Publish(ctx context.Context, videoFile string, md *types.VideoMetadata) (videoID, videoURL string, err error)
}

// YouTube uploads via the Data API v3
type YouTube struct {
	svc        *youtube.Service
	cfg        config.UploadConfig
	newBackOff func() backoff.BackOff
}

// NewYouTube builds the API client. Without explicit client options an OAuth2
// client is created from the configured refresh token.
func NewYouTube(ctx context.Context, cfg config.UploadConfig, opts ...option.ClientOption) (*YouTube, error) {
	if len(opts) == 0 {
		client, err := oauthClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("youtube auth: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(client))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	y := &YouTube{svc: svc, cfg: cfg}
	y.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 2 * time.Second
		b.MaxInterval = time.Minute
		b.MaxElapsedTime = 0
		return backoff.WithMaxRetries(b, uint64(cfg.MaxRetries))
	}
	return y, nil
}

// Publish uploads the video with snippet and status. Server errors 500, 502,
// 503 and 504 and transport failures are retried; everything else fails at once.
func (y *YouTube) Publish(ctx context.Context, videoFile string, md *types.VideoMetadata) (string, string, error) {
	log.Infof("Uploading: %q", md.Title)

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                md.Title,
			Description:          md.Description,
			Tags:                 md.Tags,
			CategoryId:           md.CategoryID,
			DefaultLanguage:      md.DefaultLanguage,
			DefaultAudioLanguage: md.DefaultLanguage,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           md.Visibility,
			SelfDeclaredMadeForKids: md.MadeForKids,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	var uploaded *youtube.Video
	attempt := 0
	op := func() error {
		attempt++
		v, err := y.insert(ctx, videoFile, video)
		switch {
		case err == nil:
			uploaded = v
			return nil
		case retryable(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("attempt", attempt).Warnf("Retriable upload error, sleeping %s", wait.Round(time.Millisecond))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(y.newBackOff(), ctx), notify); err != nil {
		return "", "", fmt.Errorf("%w: youtube upload: %w", types.ErrPublishFailure, err)
	}

	videoURL := WatchURL(uploaded.Id)
	log.Info("✅ Uploaded successfully!")
	log.Infof("Video ID: %s", uploaded.Id)
	log.Infof("Video URL: %s", videoURL)
	return uploaded.Id, videoURL, nil
}

func (y *YouTube) insert(ctx context.Context, videoFile string, video *youtube.Video) (*youtube.Video, error) {
	// reopened per attempt, the previous reader is consumed
	f, err := os.Open(videoFile)
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		log.Infof("File size: %.1f MB", float64(fi.Size())/1024/1024)
	}

	call := y.svc.Videos.Insert([]string{"snippet", "status"}, video).NotifySubscribers(y.cfg.NotifySubscribers).Context(ctx)
	call.Media(f, googleapi.ChunkSize(chunkSize), googleapi.ContentType("video/mp4"))
	call.ProgressUpdater(func(current, total int64) {
		if total > 0 {
			log.Debugf("Uploaded %d%%", current*100/total)
		}
	})
	v, err := call.Do()
	if err != nil {
		return nil, err
	}
	if v.Id == "" {
		return nil, errNoVideoID
	}
	return v, nil
}

func retryable(err error) bool {
	if errors.Is(err, errNoVideoID) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 500, 502, 503, 504:
			return true
		}
		return false
	}
	// connection-level failures
	return true
}

// WatchURL is the public link of an uploaded video
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// oauthClient exchanges the stored refresh token for an authorized client
func oauthClient(ctx context.Context, cfg config.UploadConfig) (*http.Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set")
	}
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return conf.Client(ctx, token), nil
}
