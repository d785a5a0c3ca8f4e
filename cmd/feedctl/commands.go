package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/statesync"
	"github.com/unkn0wn-root/statesync/social"
)

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			u, err := a.social.AuthUser(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return c.emit(out, u, func() {
				if u == nil {
					fprintf(out, "not signed in\n")
					return
				}
				printUser(out, u)
			})
		}),
	}
}

func (c *cli) loginCmd() *cobra.Command {
	var in social.LoginInput
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			u, err := a.social.Login().Trigger(cmd.Context(), in)
			if err != nil {
				return err
			}
			if err := writeSession(a.cfg.SessionFile, a.api.Token()); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fprintf(cmd.OutOrStdout(), "signed in as @%s\n", u.Username)
			return nil
		}),
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "username")
	cmd.Flags().StringVar(&in.Password, "password", "", "password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			msg, err := a.social.Logout().Trigger(cmd.Context(), struct{}{})
			if err != nil {
				return err
			}
			if err := writeSession(a.cfg.SessionFile, ""); err != nil {
				return fmt.Errorf("clear session: %w", err)
			}
			fprintf(cmd.OutOrStdout(), "%s\n", msg)
			return nil
		}),
	}
}

func (c *cli) signupCmd() *cobra.Command {
	var in social.SignupInput
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			u, err := a.social.Signup().Trigger(cmd.Context(), in)
			var ve *social.ValidationError
			if errors.As(err, &ve) {
				for _, f := range ve.Fields {
					fprintf(cmd.ErrOrStderr(), "%s: %s\n", f.Field, f.Message)
				}
				return errors.New("signup form rejected")
			}
			if err != nil {
				return err
			}
			if err := writeSession(a.cfg.SessionFile, a.api.Token()); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fprintf(cmd.OutOrStdout(), "Account created successfully, signed in as @%s\n", u.Username)
			return nil
		}),
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "email")
	cmd.Flags().StringVar(&in.Username, "username", "", "username")
	cmd.Flags().StringVar(&in.FullName, "full-name", "", "full name")
	cmd.Flags().StringVar(&in.Password, "password", "", "password")
	return cmd
}

func (c *cli) profileCmd() *cobra.Command {
	var (
		watch   bool
		updates int
	)
	cmd := &cobra.Command{
		Use:   "profile <username>",
		Short: "Show a profile, optionally following changes",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if !watch {
				u, err := a.social.UserProfile(ctx, args[0])
				if err != nil {
					return err
				}
				me, _ := a.social.AuthUser(ctx)
				return c.emit(out, u, func() { printProfile(out, me, u) })
			}

			sub, err := a.social.WatchProfile(ctx, args[0])
			if err != nil {
				return err
			}
			defer sub.Close()
			printed := 0
			for {
				select {
				case <-ctx.Done():
					return nil
				case st, ok := <-sub.Updates():
					if !ok {
						return nil
					}
					if st.Fetching {
						continue
					}
					if err := c.emitState(out, st); err != nil {
						return err
					}
					printed++
					if updates > 0 && printed >= updates {
						return nil
					}
				}
			}
		}),
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep printing the profile as it changes")
	cmd.Flags().IntVar(&updates, "updates", 0, "with --watch, stop after this many updates (0 = until interrupted)")
	return cmd
}

func (c *cli) emitState(w io.Writer, st statesync.State[*social.User]) error {
	type view struct {
		Status    string       `json:"status"`
		Error     string       `json:"error,omitempty"`
		Stale     bool         `json:"stale"`
		User      *social.User `json:"user,omitempty"`
		UpdatedAt string       `json:"updatedAt,omitempty"`
	}
	v := view{Status: st.Status.String(), Stale: st.Stale, User: st.Value}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	if !st.UpdatedAt.IsZero() {
		v.UpdatedAt = st.UpdatedAt.Format("15:04:05")
	}
	return c.emit(w, v, func() {
		switch {
		case st.Status == statesync.StatusError:
			fprintf(w, "[%s] error: %v\n", v.UpdatedAt, st.Err)
		case st.Value != nil:
			fprintf(w, "[%s] @%s followers=%d following=%d\n", v.UpdatedAt, st.Value.Username, len(st.Value.Followers), len(st.Value.Following))
		default:
			fprintf(w, "[%s] %s\n", v.UpdatedAt, v.Status)
		}
	})
}

func (c *cli) followCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "follow <user-id>",
		Short: "Follow or unfollow a user",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, args []string, a *app) error {
			msg, err := a.social.Follow().Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "%s\n", msg)
			return nil
		}),
	}
}

func (c *cli) suggestedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggested",
		Short: "List users to follow",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			users, err := a.social.SuggestedUsers(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return c.emit(out, users, func() {
				for _, u := range users {
					fprintf(out, "%s\t@%s\t%s\n", u.ID, u.Username, u.FullName)
				}
			})
		}),
	}
}

func (c *cli) postsCmd() *cobra.Command {
	var (
		feed string
		arg  string
	)
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List posts",
		Long: `List a feed of posts, newest first.

Feeds:
  forYou     every post
  following  posts by users you follow
  posts      posts by --arg <username>
  likes      posts liked by --arg <user-id>`,
		Args: cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			posts, err := a.social.Posts(cmd.Context(), social.Feed(feed), arg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return c.emit(out, posts, func() { printPosts(out, posts) })
		}),
	}
	cmd.Flags().StringVar(&feed, "feed", string(social.FeedForYou), "feed: forYou|following|posts|likes")
	cmd.Flags().StringVar(&arg, "arg", "", "username (posts) or user id (likes)")
	return cmd
}

func (c *cli) postCmd() *cobra.Command {
	var img string
	cmd := &cobra.Command{
		Use:   "post [text]",
		Short: "Create a post",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.run(func(cmd *cobra.Command, args []string, a *app) error {
			in := social.CreatePostInput{Img: img}
			if len(args) == 1 {
				in.Text = args[0]
			}
			p, err := a.social.CreatePost().Trigger(cmd.Context(), in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return c.emit(out, p, func() { fprintf(out, "created post %s\n", p.ID) })
		}),
	}
	cmd.Flags().StringVar(&img, "img", "", "image URL")
	return cmd
}

func (c *cli) likeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "like <post-id>",
		Short: "Like or unlike a post",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, args []string, a *app) error {
			likes, err := a.social.LikePost().Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "%d likes\n", len(likes))
			return nil
		}),
	}
}

func (c *cli) notificationsCmd() *cobra.Command {
	var clearAll bool
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List (or clear) notifications",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			out := cmd.OutOrStdout()
			if clearAll {
				msg, err := a.social.DeleteNotifications().Trigger(cmd.Context(), struct{}{})
				if err != nil {
					return err
				}
				fprintf(out, "%s\n", msg)
				return nil
			}
			notes, err := a.social.Notifications(cmd.Context())
			if err != nil {
				return err
			}
			return c.emit(out, notes, func() {
				if len(notes) == 0 {
					fprintf(out, "no notifications\n")
				}
				for _, n := range notes {
					fprintf(out, "%s\n", describeNotification(n))
				}
			})
		}),
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "delete all notifications")
	return cmd
}

func printUser(w io.Writer, u *social.User) {
	fprintf(w, "%s (@%s)\n", u.FullName, u.Username)
	fprintf(w, "id: %s\n", u.ID)
	if since := social.MemberSince(u.CreatedAt); since != "" {
		fprintf(w, "%s\n", since)
	}
}

func printProfile(w io.Writer, me, u *social.User) {
	printUser(w, u)
	if u.Bio != "" {
		fprintf(w, "%s\n", u.Bio)
	}
	if u.Link != "" {
		fprintf(w, "%s\n", u.Link)
	}
	fprintf(w, "%d following  %d followers\n", len(u.Following), len(u.Followers))
	switch {
	case social.IsMyProfile(me, u):
		fprintf(w, "(you)\n")
	case social.IsFollowing(me, u.ID):
		fprintf(w, "(following)\n")
	}
}

func printPosts(w io.Writer, posts []social.Post) {
	if len(posts) == 0 {
		fprintf(w, "No posts in this tab.\n")
		return
	}
	for _, p := range posts {
		text := p.Text
		if p.Img != "" {
			text = strings.TrimSpace(text + " [img]")
		}
		fprintf(w, "%s  @%s  %s  (%d likes, %d comments)\n", p.ID, p.User.Username, text, len(p.Likes), len(p.Comments))
	}
}

func describeNotification(n social.Notification) string {
	mark := " "
	if !n.Read {
		mark = "*"
	}
	switch n.Type {
	case social.NotifyFollow:
		return fmt.Sprintf("%s @%s followed you", mark, n.From.Username)
	case social.NotifyLike:
		return fmt.Sprintf("%s @%s liked your post", mark, n.From.Username)
	default:
		return fmt.Sprintf("%s @%s %s", mark, n.From.Username, n.Type)
	}
}
