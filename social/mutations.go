package social

import (
	"context"
	"net/url"

	"github.com/unkn0wn-root/statesync"
)

// MutationOption customizes a mutation built by Client, e.g. to add
// callbacks.
type MutationOption[In, Out any] func(*statesync.MutationOptions[In, Out])

func OnSuccess[In, Out any](f func(ctx context.Context, in In, out Out)) MutationOption[In, Out] {
	return func(o *statesync.MutationOptions[In, Out]) { o.OnSuccess = f }
}

func OnError[In, Out any](f func(ctx context.Context, in In, err error)) MutationOption[In, Out] {
	return func(o *statesync.MutationOptions[In, Out]) { o.OnError = f }
}

func newMutation[In, Out any](c *Client, name string, fn statesync.MutationFunc[In, Out], invalidates []statesync.Key, opts []MutationOption[In, Out]) *statesync.Mutation[In, Out] {
	o := statesync.MutationOptions[In, Out]{Name: name, Fn: fn, Invalidates: invalidates}
	for _, opt := range opts {
		opt(&o)
	}
	return statesync.NewMutation(c.cache, o)
}

// Signup validates the form before sending anything; a rejected form fails
// with *ValidationError.
func (c *Client) Signup(opts ...MutationOption[SignupInput, *User]) *statesync.Mutation[SignupInput, *User] {
	return newMutation(c, "signup", func(ctx context.Context, in SignupInput) (*User, error) {
		if err := ValidateSignup(in); err != nil {
			return nil, err
		}
		var u User
		if err := c.api.Post(ctx, "/api/auth/signup", in, &u); err != nil {
			return nil, err
		}
		return &u, nil
	}, []statesync.Key{AuthUserKey}, opts)
}

func (c *Client) Login(opts ...MutationOption[LoginInput, *User]) *statesync.Mutation[LoginInput, *User] {
	return newMutation(c, "login", func(ctx context.Context, in LoginInput) (*User, error) {
		var u User
		if err := c.api.Post(ctx, "/api/auth/login", in, &u); err != nil {
			return nil, err
		}
		return &u, nil
	}, []statesync.Key{AuthUserKey}, opts)
}

func (c *Client) Logout(opts ...MutationOption[struct{}, string]) *statesync.Mutation[struct{}, string] {
	return newMutation(c, "logout", func(ctx context.Context, _ struct{}) (string, error) {
		var m message
		err := c.api.Post(ctx, "/api/auth/logout", nil, &m)
		return m.Message, err
	}, []statesync.Key{AuthUserKey}, opts)
}

// Follow toggles following userID and returns the server message.
func (c *Client) Follow(opts ...MutationOption[string, string]) *statesync.Mutation[string, string] {
	return newMutation(c, "follow", func(ctx context.Context, userID string) (string, error) {
		var m message
		err := c.api.Post(ctx, "/api/users/follow/"+url.PathEscape(userID), nil, &m)
		return m.Message, err
	}, []statesync.Key{SuggestedUsersKey, AuthUserKey, UserProfilePrefix}, opts)
}

func (c *Client) UpdateProfile(opts ...MutationOption[UpdateProfileInput, *User]) *statesync.Mutation[UpdateProfileInput, *User] {
	return newMutation(c, "updateProfile", func(ctx context.Context, in UpdateProfileInput) (*User, error) {
		var u User
		if err := c.api.Post(ctx, "/api/users/update", in, &u); err != nil {
			return nil, err
		}
		return &u, nil
	}, []statesync.Key{AuthUserKey, UserProfilePrefix}, opts)
}

func (c *Client) CreatePost(opts ...MutationOption[CreatePostInput, Post]) *statesync.Mutation[CreatePostInput, Post] {
	return newMutation(c, "createPost", func(ctx context.Context, in CreatePostInput) (Post, error) {
		var p Post
		err := c.api.Post(ctx, "/api/posts/create", in, &p)
		return p, err
	}, []statesync.Key{PostsPrefix}, opts)
}

// LikePost toggles a like and returns the post's updated like list.
func (c *Client) LikePost(opts ...MutationOption[string, []string]) *statesync.Mutation[string, []string] {
	return newMutation(c, "likePost", func(ctx context.Context, postID string) ([]string, error) {
		var likes []string
		err := c.api.Post(ctx, "/api/posts/like/"+url.PathEscape(postID), nil, &likes)
		return likes, err
	}, []statesync.Key{PostsPrefix}, opts)
}

func (c *Client) DeleteNotifications(opts ...MutationOption[struct{}, string]) *statesync.Mutation[struct{}, string] {
	return newMutation(c, "deleteNotifications", func(ctx context.Context, _ struct{}) (string, error) {
		var m message
		err := c.api.Delete(ctx, "/api/notifications", &m)
		return m.Message, err
	}, []statesync.Key{NotificationsKey}, opts)
}
