// Command feedctl talks to the social API through a statesync cache.
//
//	feedctl serve-fake --addr :5000 --seed
//	feedctl login --username ada --password 'secret1!'
//	feedctl whoami
//	feedctl profile ada --watch
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
