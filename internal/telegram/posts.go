package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"channel-snapshot/internal/capture"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type ChannelPost struct {
	// Post ID, e.g. 42. Issued in increasing order by the channel.
	ID          int64  `json:"id"`
	URL         string `json:"url"`
	AuthorName  string `json:"authorName"`
	AuthorPhoto string `json:"authorPhoto,omitempty"`
	BodyHTML    string `json:"bodyHTML"`
	// View counter as rendered, e.g. "1.2K".
	Views         string    `json:"views,omitempty"`
	AuthorLabel   string    `json:"authorLabel,omitempty"`
	PublishedAt   time.Time `json:"publishedAt"`
	ForwardedFrom *Forward  `json:"forwardedFrom,omitempty"`
}

type Forward struct {
	Href string `json:"href"`
	Name string `json:"name"`
}

// PostsResult carries either Posts or Err, never both.
type PostsResult struct {
	Posts []ChannelPost
	Err   *capture.Error
}

func (r PostsResult) OK() bool {
	return r.Err == nil
}

// ExtractChannelPosts returns the posts on a channel's feed page, newest first.
func (c *ChannelCapture) ExtractChannelPosts(ctx context.Context, channelURL string) PostsResult {
	ctx, span := c.Tracer().Start(ctx, "extract", trace.WithAttributes(attribute.String("url", channelURL)))
	defer span.End()
	start := time.Now()

	result := c.extract(ctx, channelURL)

	c.Observe(ctx, span, "extract", start, result.Err)
	return result
}

func (c *ChannelCapture) extract(ctx context.Context, channelURL string) PostsResult {
	feedURL, ok := FeedURL(channelURL)
	if !ok {
		return PostsResult{Err: &capture.Error{
			Kind: capture.InvalidURLError,
			Err:  xerrors.Errorf("invalid url: %q", channelURL),
		}}
	}

	var posts []ChannelPost
	if e := c.WithPage(ctx, feedURL, func(page capture.Page) error {
		elements, err := page.QuerySelectorAll(messageSelector)
		if err != nil {
			return xerrors.Errorf("failed to query messages: %w", err)
		}

		slots := make([]*ChannelPost, len(elements))
		{
			eg, ctx := errgroup.WithContext(ctx)

			for i, el := range elements {
				eg.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					post, ok, err := extractPost(el, feedURL)
					if err != nil {
						return err
					}
					if ok {
						slots[i] = &post
					}
					return nil
				})
			}

			if err := eg.Wait(); err != nil {
				return err
			}
		}

		posts = orderPosts(slots)
		return nil
	}); e != nil {
		return PostsResult{Err: e}
	}

	c.log.V(1).Info("extracted posts", "url", feedURL, "posts", len(posts))
	return PostsResult{Posts: posts}
}

func isServiceMessage(class string) bool {
	return strings.Contains(class, serviceMessageClass)
}

func extractPost(el capture.Element, feedURL string) (ChannelPost, bool, error) {
	class, err := el.GetAttribute("class")
	if err != nil {
		return ChannelPost{}, false, xerrors.Errorf("failed to read message class: %w", err)
	}
	if isServiceMessage(class) {
		return ChannelPost{}, false, nil
	}

	v, err := el.Evaluate(extractPostScript, nil)
	if err != nil {
		return ChannelPost{}, false, xerrors.Errorf("failed to extract message fields: %w", err)
	}

	raw, err := decodeRawPost(v)
	if err != nil {
		return ChannelPost{}, false, err
	}

	post, ok := raw.toPost(feedURL)
	return post, ok, nil
}

// rawPost is the record produced inside the page by extractPostScript.
type rawPost struct {
	DataPost      string `json:"dataPost"`
	UserPhoto     string `json:"userPhoto"`
	OwnerName     string `json:"ownerName"`
	Body          string `json:"body"`
	Views         string `json:"views"`
	Author        string `json:"author"`
	Datetime      string `json:"datetime"`
	ForwardedHref string `json:"forwardedHref"`
	ForwardedName string `json:"forwardedName"`
}

func decodeRawPost(v any) (rawPost, error) {
	var raw rawPost
	if v == nil {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return raw, xerrors.Errorf("failed to marshal message fields: %w", err)
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return raw, xerrors.Errorf("failed to unmarshal message fields: %w", err)
	}
	return raw, nil
}

// parsePostID reads the id out of a "<channel>/<id>" data attribute.
func parsePostID(dataPost string) (string, int64, bool) {
	channel, id, found := strings.Cut(strings.TrimSpace(dataPost), "/")
	if !found {
		return "", 0, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return channel, n, true
}

func (r rawPost) toPost(feedURL string) (ChannelPost, bool) {
	channel, id, ok := parsePostID(r.DataPost)
	if !ok {
		return ChannelPost{}, false
	}

	post := ChannelPost{
		ID:          id,
		URL:         canonicalPostURL(feedURL, channel, id),
		AuthorName:  strings.TrimSpace(r.OwnerName),
		AuthorPhoto: r.UserPhoto,
		BodyHTML:    r.Body,
		Views:       strings.TrimSpace(r.Views),
		AuthorLabel: strings.TrimSpace(r.Author),
	}
	if t, err := time.Parse(time.RFC3339, r.Datetime); err == nil {
		post.PublishedAt = t
	}
	if r.ForwardedHref != "" || r.ForwardedName != "" {
		post.ForwardedFrom = &Forward{
			Href: r.ForwardedHref,
			Name: strings.TrimSpace(r.ForwardedName),
		}
	}
	return post, true
}

// canonicalPostURL drops the feed segment from feedURL and points it at post id. The channel
// name from the data attribute is used when the feed path has none.
func canonicalPostURL(feedURL string, channel string, id int64) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return ""
	}

	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(segments) > 0 && segments[0] == FeedSegment {
		segments = segments[1:]
	}
	if len(segments) > 0 {
		channel = segments[0]
	}

	return (&url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   fmt.Sprintf("/%s/%d", channel, id),
	}).String()
}

// orderPosts drops empty slots and returns the posts newest first without duplicate ids.
func orderPosts(slots []*ChannelPost) []ChannelPost {
	posts := make([]ChannelPost, 0, len(slots))
	for _, p := range slots {
		if p == nil || p.ID <= 0 {
			continue
		}
		posts = append(posts, *p)
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].ID > posts[j].ID
	})

	unique := make([]ChannelPost, 0, len(posts))
	for _, p := range posts {
		if len(unique) > 0 && unique[len(unique)-1].ID == p.ID {
			continue
		}
		unique = append(unique, p)
	}
	return unique
}
