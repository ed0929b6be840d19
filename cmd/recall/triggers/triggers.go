// Package triggerscmder provides the triggers command for matching a prompt
// against saved trigger phrases.
package triggerscmder

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apisearch "github.com/papercomputeco/recall/api/search"
	"github.com/papercomputeco/recall/cmd/recall/bootstrap"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/triggers"
	"github.com/papercomputeco/recall/pkg/utils"
)

// maxTitleLen caps titles in styled output.
const maxTitleLen = 72

type triggersCommander struct {
	flags config.EngineFlagValues

	prompt    string
	limit     int
	jsonOut   bool
	configDir string

	out    io.Writer
	v      *viper.Viper
	logger *slog.Logger
}

const triggersLongDesc string = `Match a prompt against saved trigger phrases.

Prints the memories whose trigger phrases appear in the prompt, most matched
phrases first. This is the check an agent runs on every user turn.

Examples:
  recall triggers "How do I configure the database?"
  recall triggers "tune the connection pool" --limit 1 --json`

const triggersShortDesc string = "Match trigger phrases in a prompt"

func NewTriggersCmd() *cobra.Command {
	cmder := &triggersCommander{}

	cmd := &cobra.Command{
		Use:   "triggers <prompt>",
		Short: triggersShortDesc,
		Long:  triggersLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bootstrap.Viper(cmd, config.EngineFlags, config.EngineFlagKeys)
			if err != nil {
				return err
			}
			cmder.v = v
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.prompt = args[0]
			cmder.out = cmd.OutOrStdout()
			cmder.logger = bootstrap.Logger(cmd)
			return cmder.run(cmd)
		},
	}

	config.AddEngineFlags(cmd, &cmder.flags)
	cmd.Flags().IntVarP(&cmder.limit, "limit", "k", triggers.DefaultMatchLimit, "Maximum number of matches")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print matches as JSON")

	return cmd
}

func (c *triggersCommander) run(cmd *cobra.Command) error {
	eng, err := bootstrap.Open(c.v, bootstrap.Options{ConfigDir: c.configDir, Logger: c.logger})
	if err != nil {
		return err
	}
	defer eng.Close()

	limit := c.limit
	if limit == 0 {
		limit = -1
	}
	output, err := apisearch.MatchTriggers(cmd.Context(), eng, apisearch.TriggersInput{
		Prompt: c.prompt,
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}

	if output.Count == 0 {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("No trigger phrases matched."))
		return nil
	}

	fmt.Fprintln(c.out)
	for _, m := range output.Matches {
		fmt.Fprintf(c.out, "  %s  %s  %s\n",
			cliui.IDStyle.Render(fmt.Sprintf("#%d", m.MemoryID)),
			cliui.PreviewStyle.Render(utils.Truncate(m.Title, maxTitleLen)),
			cliui.DimStyle.Render(m.FilePath),
		)
		fmt.Fprintf(c.out, "      %s\n", cliui.PhraseStyle.Render(strings.Join(m.MatchedPhrases, ", ")))
	}
	fmt.Fprintln(c.out)
	return nil
}
