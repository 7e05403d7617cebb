// knockknock serves knock-knock jokes over TCP and plays them as a client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"knockknock/cmd"
	kkerr "knockknock/internal/errors"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		var reported *kkerr.ReportedError
		if !kkerr.As(err, &reported) {
			fmt.Fprintf(os.Stderr, "knockknock: %v\n", err)
		}
		cancel()
		os.Exit(1)
	}
}
