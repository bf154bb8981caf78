// trim deletes local and remote-tracking Git branches that have
// already been integrated into a base branch, or whose upstream has
// disappeared.
package main

import (
	"context"
	"os"
	"os/signal"

	"go.abhg.dev/trim/internal/cli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	go func() {
		<-sigc
		cancel()
	}()

	os.Exit(cli.Run(ctx, os.Stdout, os.Stderr))
}
