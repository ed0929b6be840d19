// Package configcmder provides the config command for managing persistent
// recall configuration stored in the .recall/ directory.
package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
)

const configLongDesc string = `Manage persistent recall configuration.

Configuration is stored as config.toml in the .recall/ directory and provides
default values for command flags. CLI flags and RECALL_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.sqlite_path, storage.memory_root, vector.enabled,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  triggers.cache_ttl, triggers.max_phrases,
  retry.max_attempts, retry.rate_per_second, retry.interval, retry.batch_size,
  api.listen, events.provider, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  recall config set <key> <value>    Set a configuration value
  recall config get <key>            Get a configuration value
  recall config list                 List all configuration values

Examples:
  recall config set embedding.model all-minilm
  recall config set retry.interval 5m
  recall config get api.listen
  recall config list`

const configShortDesc string = "Manage persistent recall configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
