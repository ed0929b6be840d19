// Package recallcmder
package recallcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/recall/cmd/recall/config"
	initcmder "github.com/papercomputeco/recall/cmd/recall/init"
	loadcmder "github.com/papercomputeco/recall/cmd/recall/load"
	retrycmder "github.com/papercomputeco/recall/cmd/recall/retry"
	savecmder "github.com/papercomputeco/recall/cmd/recall/save"
	searchcmder "github.com/papercomputeco/recall/cmd/recall/search"
	servecmder "github.com/papercomputeco/recall/cmd/recall/serve"
	statuscmder "github.com/papercomputeco/recall/cmd/recall/status"
	triggerscmder "github.com/papercomputeco/recall/cmd/recall/triggers"
	versioncmder "github.com/papercomputeco/recall/cmd/version"
)

const recallLongDesc string = `Recall is a memory index for coding agents.

Saved memory files are indexed by trigger phrases and embeddings so the right
context can be found again, by meaning or by the words in a prompt.

Run services using:
  recall serve            Run the API and MCP server

Work with the index directly:
  recall save <file>      Index a memory file
  recall search <query>   Search memories by meaning
  recall load             Print a saved memory
  recall triggers <text>  Match trigger phrases in a prompt`

const recallShortDesc string = "Recall - Agent Memory"

func NewRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "recall",
		Short:         recallShortDesc,
		Long:          recallLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .recall/ config directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(savecmder.NewSaveCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(loadcmder.NewLoadCmd())
	cmd.AddCommand(triggerscmder.NewTriggersCmd())
	cmd.AddCommand(retrycmder.NewRetryCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
