package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sotakeda/bounce/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := cli.Execute(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "bounce: interrupted")
		} else {
			fmt.Fprintf(os.Stderr, "bounce: %v\n", err)
		}
	}
	cancel()
	os.Exit(cli.ExitCode(err))
}
