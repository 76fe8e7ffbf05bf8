package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/streamscout/internal/config"
)

//go:embed templates/streamscout.yaml
var configTemplate []byte

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a streamscout configuration file",
		Long: `Init writes a commented .streamscout.yaml to the current directory.

The file holds the receiving service settings, defaults for every site and
per-site overrides keyed by host.

Examples:
  # Create .streamscout.yaml in the current directory
  streamscout init

  # Create the file at a specific path
  streamscout init -o ~/.config/streamscout/.streamscout.yaml

  # Overwrite an existing file
  streamscout init -f`,
		Args: usageArgs(cobra.NoArgs),
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Owner-only: the file may hold the sink secret.
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0600) //nolint:gosec // user-provided output path is intentional
	if errors.Is(err, fs.ErrExist) {
		return usageError(fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", path))
	}
	if err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}
	if _, err := f.Write(configTemplate); err != nil {
		_ = f.Close() //nolint:errcheck // write error wins
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `Created configuration file: %s

Edit this file to configure:
  - the receiving service endpoint and secret
  - play control selectors and denylist patterns per site
  - user agent, cookies and signal timeout per site
`, path)
	return nil
}
