// dsarctl is the operator command line for the data subject request service.
//
// Usage:
//
//	dsarctl scan [--strategy membership]
//	dsarctl purge --confirm
//	dsarctl resolve <scope-id> [--purpose <id> | --preview]
//	dsarctl requeue <request-id>
//	dsarctl token <user-id> [--ttl 1h]
//	dsarctl version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/privacyops/dsar/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
