package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/emitterkit/internal/builtin"
	"github.com/GabrielNunesIT/emitterkit/internal/config"
	"github.com/GabrielNunesIT/emitterkit/internal/envelope"
	"github.com/GabrielNunesIT/emitterkit/internal/provider"
)

// NewSealCmd creates the seal command. It builds a configured component and
// prints its serialized state in the configured format.
func NewSealCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seal <component-id>",
		Short: "Print the serialized state of a configured component",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			token, err := sealComponent(cmd.Context(), cfg, builtin.NewRegistry(logger.NewConsoleLogger(io.Discard)), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func sealComponent(ctx context.Context, cfg *config.Config, registry *provider.Registry, id string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	fs := cfg.Format.Settings()

	for _, comp := range cfg.Emitters {
		if comp.ID != id {
			continue
		}
		desc, err := comp.EmitterDescription()
		if err != nil {
			return "", err
		}
		em, err := registry.BuildEmitter(ctx, desc)
		if err != nil {
			return "", err
		}
		defer em.Dispose()
		return em.SerializeState(fs.WithType(em.Type()))
	}

	for _, comp := range cfg.Chroniclers {
		if comp.ID != id {
			continue
		}
		desc, err := comp.ChroniclerDescription()
		if err != nil {
			return "", err
		}
		c, err := registry.BuildChronicler(ctx, desc)
		if err != nil {
			return "", err
		}
		defer c.DisposeAsync(ctx)
		return c.SerializeState(fs.WithType(c.Type()))
	}

	return "", fmt.Errorf("no component with id %q", id)
}

// NewInspectCmd creates the inspect command. It opens a serialized state
// token with the configured format and prints the description it holds.
func NewInspectCmd(cfgFile *string) *cobra.Command {
	var (
		output    string
		plain     bool
		key       string
		iv        string
		algorithm string
	)

	cmd := &cobra.Command{
		Use:   "inspect <token>",
		Short: "Decode a serialized component state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			fs := cfg.Format.Settings()
			if key != "" {
				fs.Encrypted = true
				fs.Key = key
			}
			if iv != "" {
				fs.IV = iv
			}
			if algorithm != "" {
				fs.Algorithm = algorithm
			}
			if plain {
				fs.Encrypted = false
			}

			var desc map[string]any
			if err := envelope.DecodeJSON(strings.TrimSpace(args[0]), fs, &desc); err != nil {
				return err
			}
			return writeDescription(cmd.OutOrStdout(), desc, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format (yaml, json)")
	cmd.Flags().BoolVar(&plain, "plain", false, "the token is not sealed")
	cmd.Flags().StringVar(&key, "key", "", "base64 key; overrides the config")
	cmd.Flags().StringVar(&iv, "iv", "", "base64 iv; overrides the config")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "cipher; overrides the config")

	return cmd
}

func writeDescription(w io.Writer, desc map[string]any, output string) error {
	switch strings.ToLower(output) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(desc)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(desc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

// NewTypesCmd creates the types command.
func NewTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the registered emitter and chronicler types",
		Run: func(cmd *cobra.Command, args []string) {
			r := builtin.NewRegistry(logger.NewConsoleLogger(io.Discard))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Emitters:    %s\n", strings.Join(r.EmitterFactoryTypes(), ", "))
			fmt.Fprintf(out, "Chroniclers: %s\n", strings.Join(r.ChroniclerFactoryTypes(), ", "))
		},
	}
}
