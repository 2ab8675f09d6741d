// Command preprocess assembles and runs the image preprocessing graph of a dataset.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Minimal logger until the flags are parsed.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// run executes the command line args, writing results to outW and logs to logW.
func run(ctx context.Context, outW, logW io.Writer, args []string) error {
	cmd := newRootCmd(outW, logW)
	cmd.SetArgs(args)

	return cmd.ExecuteContext(ctx)
}
