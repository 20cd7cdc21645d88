package main

import (
	"context"
	"fmt"

	"github.com/clasper-run/clasper/internal/config"
	"github.com/urfave/cli/v3"
)

// reconcileCommand re-evaluates every pending decision for a tenant against
// the current policy set, auto-resolving any that now allow (spec §6
// POST /ops/api/decisions/reconcile, concrete scenario where a policy
// tightens or loosens after requests are already pending).
func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Re-evaluate pending decisions against the current policy set",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant-id", Aliases: []string{"t"}, Usage: "Tenant to reconcile (defaults to CLASPER_LOCAL_TENANT_ID)"},
		},
		Action: executeReconcile,
	}
}

func executeReconcile(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	tenantID := cmd.String("tenant-id")
	if tenantID == "" {
		tenantID = config.VConfig.GetString(config.LocalTenantID)
	}

	resolved, err := a.ledger.ReconcilePending(tenantID)
	if err != nil {
		return fmt.Errorf("reconcile pending decisions: %w", err)
	}

	logger.Info("reconcile", "reconcile", fmt.Sprintf("resolved %d decision(s): %v", len(resolved), resolved))
	return nil
}
