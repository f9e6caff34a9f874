// Command evaluate scores a multi-head fashion attribute classifier on a labeled test set.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/fashion-eval/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(run).ExecuteContext(ctx); err != nil {
		log.Errorf("evaluation failed: %+v", err)
		stop()
		os.Exit(1)
	}
}
