package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "clasperd",
		Usage: "The clasper governance control plane",
		Commands: []*cli.Command{
			serveCommand(),
			seedPoliciesCommand(),
			verifyAuditCommand(),
			reconcileCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
