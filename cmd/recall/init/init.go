// Package initcmder provides the init command for initializing a local
// .recall directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
)

const dirName = ".recall"

type initCommander struct {
	preset string
	force  bool
}

const initLongDesc string = `Initialize a new .recall/ directory in the current working directory.

Creates a local .recall/ directory that takes precedence over the default
~/.recall/ directory for the memory index and configuration. With --preset a
config.toml is written for the chosen embedding setup:
  ollama    Ollama at localhost:11434 with nomic-embed-text (768 dims)
  onnx      in-process ONNX Runtime with all-MiniLM-L6-v2 (384 dims)
  keyword   no embeddings, trigger phrases only

Examples:
  recall init
  recall init --preset onnx`

const initShortDesc string = "Initialize a local .recall/ directory"

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Write config.toml for a preset ("+strings.Join(config.ValidPresetNames(), ", ")+")")
	cmd.Flags().BoolVar(&cmder.force, "force", false, "Overwrite an existing config.toml")

	return cmd
}

func (c *initCommander) run(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	var preset *config.Config
	if c.preset != "" {
		var err error
		preset, err = config.PresetConfig(c.preset)
		if err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
	default:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .recall directory: %w", err)
		}
		fmt.Fprintf(out, "Initialized .recall directory: %s\n", dir)
	}

	if preset == nil {
		return nil
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if _, err := os.Stat(cfger.GetTarget()); err == nil && !c.force {
		return errors.New("config.toml already exists, pass --force to overwrite")
	}
	if err := cfger.SaveConfig(preset); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Wrote %s preset to %s\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(c.preset),
		cliui.DimStyle.Render(cfger.GetTarget()),
	)
	return nil
}
