package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/camconform/internal/config"
)

// ValidationResult holds config validation results.
type ValidationResult struct {
	File   string `json:"file"`
	Valid  bool   `json:"valid"`
	Errors string `json:"errors,omitempty"`
}

// NewConfigCommand creates the config command and its subcommands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a config file against the schema",
		Long: `Validate a camconform config file without running anything.

The file is checked against the embedded CUE schema, decoded strictly
(unknown fields are rejected) and checked for conflicting paths.
Defaults to the --config file.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config
			if len(args) == 1 {
				path = args[0]
			}
			return runConfigValidate(rootOpts, path, cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration as YAML",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(rootOpts, cmd)
		},
	})

	return cmd
}

func runConfigValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("Validating %s", path)

	_, err := config.Load(path)
	if err == nil {
		if formatter.JSON() {
			return formatter.Success(ValidationResult{File: path, Valid: true})
		}
		fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", path)
		return nil
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to read config", err)
	}

	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{File: path, Valid: false, Errors: err.Error()},
			Error: &CLIError{
				Code:    ErrCodeConfig,
				Message: "config validation failed",
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if encErr := encoder.Encode(response); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %s\n", err)
	}

	// Validation failures = exit code 1
	return WrapExitError(ExitFailure, "config validation failed", err)
}

// showConfig is the effective config with secrets masked.
func showConfig(cfg config.Config) config.Config {
	if cfg.Archive.SecretKey != "" {
		cfg.Archive.SecretKey = "********"
	}
	return cfg
}

func runConfigShow(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	cfg = showConfig(cfg)

	if formatter.JSON() {
		return formatter.Success(cfg)
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = formatter.Writer.Write(out)
	return err
}
