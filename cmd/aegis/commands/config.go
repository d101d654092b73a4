package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/config"
	"github.com/aegisgate/aegis/internal/security"
)

// NewConfigCommand validates the service configuration without starting it.
func NewConfigCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate the service configuration",
		Long:  "Load and validate the configuration the server would start with, including PII patterns and tool allow-lists.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// The same construction the server performs at startup.
			if _, err := security.NewDetector(zap.NewNop(), cfg.Guardrails.CustomPIIPatterns); err != nil {
				return fmt.Errorf("invalid PII pattern configuration: %w", err)
			}
			if _, err := security.NewRBACManager(security.ToolAccessPolicy{
				EmployeeTools: cfg.Guardrails.EmployeeTools,
				AdminTools:    cfg.Guardrails.AdminTools,
			}, zap.NewNop()); err != nil {
				return fmt.Errorf("invalid tool access policy: %w", err)
			}

			fmt.Println("Configuration is valid")
			fmt.Printf("  server port:        %d\n", cfg.Server.Port)
			fmt.Printf("  rules backend:      %s\n", orDefault(cfg.Guardrails.RulesURL, "(baseline)"))
			fmt.Printf("  rate limiting:      %v\n", cfg.RateLimit.Enabled)
			fmt.Printf("  employee tools:     %d\n", len(cfg.Guardrails.EmployeeTools))
			fmt.Printf("  admin tools:        %d\n", len(cfg.Guardrails.AdminTools))
			fmt.Printf("  custom pii patterns: %d\n", len(cfg.Guardrails.CustomPIIPatterns))
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "directory containing config.yaml")
	return cmd
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
