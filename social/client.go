// Package social binds the social API to statesync: query definitions for the
// signed-in user, profiles, feeds, notifications and suggestions, and the
// mutations that invalidate them.
package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/unkn0wn-root/statesync"
	"github.com/unkn0wn-root/statesync/codec"
	"github.com/unkn0wn-root/statesync/httpapi"
)

// Feed selects a post listing.
type Feed string

const (
	FeedForYou    Feed = "forYou"
	FeedFollowing Feed = "following"
	FeedUser      Feed = "posts" // arg: username
	FeedLikes     Feed = "likes" // arg: user id
)

var (
	AuthUserKey       = statesync.K("authUser")
	UserProfilePrefix = statesync.K("userProfile")
	PostsPrefix       = statesync.K("posts")
	NotificationsKey  = statesync.K("notifications")
	SuggestedUsersKey = statesync.K("suggestedUsers")
)

func UserProfileKey(username string) statesync.Key { return statesync.K("userProfile", username) }

func PostsKey(feed Feed, arg string) statesync.Key { return statesync.K("posts", string(feed), arg) }

type Config struct {
	// Codec names the persistence codec ("json", "cbor", "msgpack").
	Codec string
}

// Client issues social API requests through a statesync cache.
type Client struct {
	cache *statesync.Client
	api   *httpapi.Client

	userCodec  codec.Codec[*User]
	usersCodec codec.Codec[[]User]
	postsCodec codec.Codec[[]Post]
	notesCodec codec.Codec[[]Notification]
}

func New(cache *statesync.Client, api *httpapi.Client, cfg Config) (*Client, error) {
	c := &Client{cache: cache, api: api}
	var err error
	if c.userCodec, err = codec.ByName[*User](cfg.Codec); err != nil {
		return nil, err
	}
	if c.usersCodec, err = codec.ByName[[]User](cfg.Codec); err != nil {
		return nil, err
	}
	if c.postsCodec, err = codec.ByName[[]Post](cfg.Codec); err != nil {
		return nil, err
	}
	if c.notesCodec, err = codec.ByName[[]Notification](cfg.Codec); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Cache() *statesync.Client { return c.cache }
func (c *Client) API() *httpapi.Client     { return c.api }

// ---- queries ----

// AuthUserQuery resolves to nil when nobody is signed in.
func (c *Client) AuthUserQuery() statesync.Query[*User] {
	return statesync.Query[*User]{
		Key:   AuthUserKey,
		Codec: c.userCodec,
		Fetch: func(ctx context.Context) (*User, error) {
			var u User
			err := c.api.Get(ctx, "/api/auth/me", &u)
			if ae, ok := statesync.AsApplication(err); ok && ae.Status == http.StatusUnauthorized {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return &u, nil
		},
	}
}

func (c *Client) UserProfileQuery(username string) statesync.Query[*User] {
	return statesync.Query[*User]{
		Key:   UserProfileKey(username),
		Codec: c.userCodec,
		Fetch: func(ctx context.Context) (*User, error) {
			var u User
			if err := c.api.Get(ctx, "/api/users/profile/"+url.PathEscape(username), &u); err != nil {
				return nil, err
			}
			return &u, nil
		},
	}
}

func (c *Client) PostsQuery(feed Feed, arg string) (statesync.Query[[]Post], error) {
	path, err := feedPath(feed, arg)
	if err != nil {
		return statesync.Query[[]Post]{}, err
	}
	return statesync.Query[[]Post]{
		Key:   PostsKey(feed, arg),
		Codec: c.postsCodec,
		Fetch: func(ctx context.Context) ([]Post, error) {
			var posts []Post
			err := c.api.Get(ctx, path, &posts)
			return posts, err
		},
	}, nil
}

func feedPath(feed Feed, arg string) (string, error) {
	switch feed {
	case FeedForYou:
		return "/api/posts/all", nil
	case FeedFollowing:
		return "/api/posts/following", nil
	case FeedUser:
		return "/api/posts/user/" + url.PathEscape(arg), nil
	case FeedLikes:
		return "/api/posts/likes/" + url.PathEscape(arg), nil
	default:
		return "", fmt.Errorf("social: unknown feed %q", feed)
	}
}

func (c *Client) NotificationsQuery() statesync.Query[[]Notification] {
	return statesync.Query[[]Notification]{
		Key:   NotificationsKey,
		Codec: c.notesCodec,
		Fetch: func(ctx context.Context) ([]Notification, error) {
			var out []Notification
			err := c.api.Get(ctx, "/api/notifications", &out)
			return out, err
		},
	}
}

func (c *Client) SuggestedUsersQuery() statesync.Query[[]User] {
	return statesync.Query[[]User]{
		Key:   SuggestedUsersKey,
		Codec: c.usersCodec,
		Fetch: func(ctx context.Context) ([]User, error) {
			var out []User
			err := c.api.Get(ctx, "/api/users/suggested", &out)
			return out, err
		},
	}
}

// AuthUser returns the signed-in user (nil when signed out), from cache when
// fresh.
func (c *Client) AuthUser(ctx context.Context) (*User, error) {
	return statesync.FetchQuery(ctx, c.cache, c.AuthUserQuery())
}

func (c *Client) UserProfile(ctx context.Context, username string) (*User, error) {
	return statesync.FetchQuery(ctx, c.cache, c.UserProfileQuery(username))
}

func (c *Client) Posts(ctx context.Context, feed Feed, arg string) ([]Post, error) {
	q, err := c.PostsQuery(feed, arg)
	if err != nil {
		return nil, err
	}
	return statesync.FetchQuery(ctx, c.cache, q)
}

func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	return statesync.FetchQuery(ctx, c.cache, c.NotificationsQuery())
}

func (c *Client) SuggestedUsers(ctx context.Context) ([]User, error) {
	return statesync.FetchQuery(ctx, c.cache, c.SuggestedUsersQuery())
}

// WatchProfile subscribes to a user's profile.
func (c *Client) WatchProfile(ctx context.Context, username string) (*statesync.Subscription[*User], error) {
	return statesync.Subscribe(ctx, c.cache, c.UserProfileQuery(username))
}

func (c *Client) WatchAuthUser(ctx context.Context) (*statesync.Subscription[*User], error) {
	return statesync.Subscribe(ctx, c.cache, c.AuthUserQuery())
}
