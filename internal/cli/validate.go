package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/emitterkit/internal/builtin"
	"github.com/GabrielNunesIT/emitterkit/internal/config"
	"github.com/GabrielNunesIT/emitterkit/internal/pipeline"
)

// NewValidateCmd creates the validate command. Every component is built but
// none is started.
func NewValidateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			// Create a silent logger for validation (discards output)
			log := logger.NewConsoleLogger(io.Discard)

			ctx := context.Background()
			p, err := pipeline.New(ctx, cfg, builtin.NewRegistry(log), log)
			if err != nil {
				return fmt.Errorf("pipeline configuration error: %w", err)
			}
			defer p.Close(ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration valid:\n")
			fmt.Fprintf(out, "  Emitters:    %d\n", p.EmitterCount())
			fmt.Fprintf(out, "  Chroniclers: %d\n", p.ChroniclerCount())
			return nil
		},
	}
}
