package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

const closeTimeout = 5 * time.Second

type cli struct {
	configPath string
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "feedctl",
		Short:         "feedctl reads and updates the social feed API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: ./feedctl.yaml or ~/.config/feedctl/feedctl.yaml)")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "output as JSON")

	root.AddCommand(
		c.whoamiCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.signupCmd(),
		c.profileCmd(),
		c.followCmd(),
		c.suggestedCmd(),
		c.postsCmd(),
		c.postCmd(),
		c.likeCmd(),
		c.notificationsCmd(),
		c.serveFakeCmd(),
	)
	return root
}

// run builds the app for one command and always closes it.
func (c *cli) run(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		cfg, err := loadConfig(c.configPath)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
			defer cancel()
			if cerr := a.Close(cctx); err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args, a)
	}
}

func (c *cli) emit(w io.Writer, v any, text func()) error {
	if c.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

func fprintf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
