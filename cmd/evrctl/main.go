// Command evrctl bootstraps the EVR issuer and foundation accounts on a Xahau
// network and funds recipients from the foundation.
//
// For detailed usage information, run:
//
//	evrctl --help
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/congo-pay/evr_bootstrap/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}
