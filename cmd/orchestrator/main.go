// Command fanout runs batch fan-out/fan-in jobs: it splits an input
// collection across parallel worker runs on the execution platform, waits
// for them and merges their outputs into one report.
//
// Exit codes: 0 on success, 2 when a worker run failed, 1 on any other error.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	rootpkg "github.com/getpup/fanout-orchestrator"
	"github.com/spf13/viper"
)

const (
	exitOK        = 0
	exitError     = 1
	exitRunFailed = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCommand(viper.New())
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, rootpkg.ErrRunFailed):
		return exitRunFailed
	default:
		return exitError
	}
}
