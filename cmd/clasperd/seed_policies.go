package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clasper-run/clasper/internal/config"
	"github.com/clasper-run/clasper/internal/model"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// seedPoliciesCommand loads a YAML or JSON array of policies from disk and
// creates each through the policy manager, or installs the documented
// fallback require_approval rule directly (spec §3: "policies may be seeded
// from YAML"; spec §9 "Open questions": the README recommends, but does not
// mandate, a library-default fallback).
func seedPoliciesCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed-policies",
		Usage: "Load policies from a YAML or JSON file, or install the recommended fallback rule",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Path to a YAML or JSON array of policies"},
			&cli.BoolFlag{Name: "fallback", Usage: "Install the recommended catch-all require_approval fallback policy"},
		},
		Action: executeSeedPolicies,
	}
}

func executeSeedPolicies(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	var toCreate []model.Policy

	if cmd.Bool("fallback") {
		toCreate = append(toCreate, fallbackPolicy(config.VConfig.GetString(config.LocalTenantID)))
	}

	if path := cmd.String("file"); path != "" {
		loaded, err := loadPolicyFile(path)
		if err != nil {
			return err
		}
		toCreate = append(toCreate, loaded...)
	}

	if len(toCreate) == 0 {
		return fmt.Errorf("nothing to seed: pass --file or --fallback")
	}

	for _, p := range toCreate {
		created, err := a.policies.Create(p)
		if err != nil {
			return fmt.Errorf("create policy: %w", err)
		}
		logger.Info("seed-policies", "seed", "created policy "+created.PolicyID)
	}
	return nil
}

func loadPolicyFile(path string) ([]model.Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var policies []model.Policy
	if isYAMLFile(path) {
		// yaml.v3 decodes mappings into map[string]interface{}, so the
		// result round-trips through encoding/json straight into the
		// snake_case `json` tags model.Policy already carries.
		var raw interface{}
		if err := yaml.NewDecoder(f).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &policies); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return policies, nil
	}

	if err := json.NewDecoder(f).Decode(&policies); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return policies, nil
}

func isYAMLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// fallbackPolicy is the catch-all require_approval rule the README
// recommends every deployment install so unknown tools never implicitly
// allow (spec §9, GLOSSARY "Fallback policy").
func fallbackPolicy(tenantID string) model.Policy {
	return model.Policy{
		Scope:      model.Scope{TenantID: tenantID},
		Subject:    model.Subject{Type: model.SubjectAdapter},
		Effect:     model.PolicyEffect{Decision: model.EffectRequireApproval},
		Precedence: 0,
		Enabled:    true,
		IsFallback: true,
		Explanation: "catch-all: require approval for any request no other policy matched",
	}
}
