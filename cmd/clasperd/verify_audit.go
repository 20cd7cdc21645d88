package main

import (
	"context"
	"fmt"

	"github.com/clasper-run/clasper/internal/audit"
	"github.com/clasper-run/clasper/internal/config"
	"github.com/clasper-run/clasper/internal/model"
	"github.com/urfave/cli/v3"
)

// verifyAuditCommand replays a tenant's audit chain and reports whether it
// is intact (spec §4.5 verifyAuditChain, §7 "Audit chain corruption").
func verifyAuditCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify-audit",
		Usage: "Replay a tenant's audit chain and report whether it verifies",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant-id", Aliases: []string{"t"}, Usage: "Tenant to verify (defaults to CLASPER_LOCAL_TENANT_ID)"},
		},
		Action: executeVerifyAudit,
	}
}

func executeVerifyAudit(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	tenantID := cmd.String("tenant-id")
	if tenantID == "" {
		tenantID = config.VConfig.GetString(config.LocalTenantID)
	}

	status, verr := audit.Verify(a.store, tenantID)
	if status == model.IntegrityCompromised {
		return fmt.Errorf("audit chain compromised for tenant %s: %v", tenantID, verr)
	}
	if verr != nil {
		return fmt.Errorf("verify audit chain: %w", verr)
	}

	logger.Info("verify-audit", "verify-audit", fmt.Sprintf("tenant %s: %s", tenantID, status))
	return nil
}
