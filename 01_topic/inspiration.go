package topic

import (
	"context"
	"fmt"

	"github.com/vartanbeno/go-reddit/v2/reddit"
)

// Inspiration supplies loose seed ideas for the topic prompt
type Inspiration interface {
	Titles(ctx context.Context) ([]string, error)
}

// RedditInspiration reads the week's top post titles of one subreddit
type RedditInspiration struct {
	client    *reddit.Client
	subreddit string
	limit     int
}

// NewRedditInspiration creates a read-only client for the weekly top posts of subreddit
func NewRedditInspiration(subreddit string, limit int, opts ...reddit.Opt) (*RedditInspiration, error) {
	client, err := reddit.NewReadonlyClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return &RedditInspiration{client: client, subreddit: subreddit, limit: limit}, nil
}

func (r *RedditInspiration) Titles(ctx context.Context) ([]string, error) {
	posts, _, err := r.client.Subreddit.TopPosts(ctx, r.subreddit, &reddit.ListPostOptions{
		ListOptions: reddit.ListOptions{Limit: r.limit},
		Time:        "week",
	})
	if err != nil {
		return nil, fmt.Errorf("r/%s top posts: %w", r.subreddit, err)
	}

	titles := make([]string, 0, len(posts))
	for _, p := range posts {
		if p.Title != "" {
			titles = append(titles, p.Title)
		}
	}
	log.WithField("subreddit", r.subreddit).Infof("Reddit: %d inspiration titles", len(titles))
	return titles, nil
}
