// Package searchcmder provides the search command for semantic search over
// saved memories.
package searchcmder

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
	"github.com/papercomputeco/recall/pkg/engine"
	"github.com/papercomputeco/recall/pkg/utils"
)

// maxTitleLen caps titles in styled output.
const maxTitleLen = 72

type searchCommander struct {
	flags config.EngineFlagValues

	query         string
	concepts      []string
	specFolder    string
	limit         int
	minSimilarity float32
	jsonOut       bool
	configDir     string

	out    io.Writer
	v      *viper.Viper
	logger *slog.Logger
}

const searchLongDesc string = `Search saved memories by meaning.

Pass a query, or two to five --concept flags to find memories similar to all
of them. When the embedding model or vector search is unavailable, results
are approximated from trigger phrases and marked degraded.

Examples:
  recall search "how do we size the connection pool"
  recall search --concept oauth --concept "token refresh" --min-similarity 0.3
  recall search "rate limiting" --spec-folder specs/002 --limit 3 --json`

const searchShortDesc string = "Search saved memories"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.MaximumNArgs(1),
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
			if len(args) == 1 {
				cmder.query = args[0]
			}
			cmder.out = cmd.OutOrStdout()
			cmder.logger = bootstrap.Logger(cmd)
			return cmder.run(cmd)
		},
	}

	config.AddEngineFlags(cmd, &cmder.flags)
	cmd.Flags().StringArrayVarP(&cmder.concepts, "concept", "c", nil, "Concept that every result must match (repeatable, 2 to 5)")
	cmd.Flags().StringVarP(&cmder.specFolder, "spec-folder", "f", "", "Restrict results to one spec folder")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "k", 10, "Number of results to return")
	cmd.Flags().Float32Var(&cmder.minSimilarity, "min-similarity", engine.DefaultMinSimilarity, "Per-concept similarity floor")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print results as JSON")

	return cmd
}

func (c *searchCommander) run(cmd *cobra.Command) error {
	eng, err := bootstrap.Open(c.v, bootstrap.Options{ConfigDir: c.configDir, Logger: c.logger})
	if err != nil {
		return err
	}
	defer eng.Close()

	in := apisearch.SearchInput{
		Query:      c.query,
		Concepts:   c.concepts,
		SpecFolder: c.specFolder,
		Limit:      c.limit,
	}
	if cmd.Flags().Changed("min-similarity") {
		in.MinSimilarity = &c.minSimilarity
	}

	output, err := apisearch.Search(cmd.Context(), eng, in)
	if err != nil {
		return err
	}

	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}

	c.print(output)
	return nil
}

func (c *searchCommander) print(output *apisearch.SearchOutput) {
	label := output.Query
	if len(output.Concepts) > 0 {
		label = strings.Join(output.Concepts, " + ")
	}

	fmt.Fprintf(c.out, "\n%s %s\n",
		cliui.HeaderStyle.Render("Search results for:"),
		cliui.IDStyle.Render(fmt.Sprintf("%q", label)),
	)
	if output.Degraded {
		fmt.Fprintf(c.out, "  %s %s\n",
			cliui.WarnMark,
			cliui.WarnStyle.Render("degraded: "+output.Reason+", ranked by trigger phrases"),
		)
	}
	fmt.Fprintln(c.out)

	if output.Count == 0 {
		fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("No results found."))
		return
	}

	for i, r := range output.Results {
		fmt.Fprintf(c.out, "  %s  %s  %s\n",
			cliui.RankStyle.Render(fmt.Sprintf("#%d", i+1)),
			cliui.ScoreStyle.Render(fmt.Sprintf("%.3f", r.Similarity)),
			cliui.PreviewStyle.Render(utils.Truncate(r.Title, maxTitleLen)),
		)
		fmt.Fprintf(c.out, "      %s %s  %s\n",
			cliui.IDStyle.Render(fmt.Sprintf("#%d", r.ID)),
			cliui.DimStyle.Render(r.SpecFolder),
			cliui.DimStyle.Render(r.FilePath),
		)
		if len(r.TriggerPhrases) > 0 {
			fmt.Fprintf(c.out, "      %s\n", cliui.PhraseStyle.Render(strings.Join(r.TriggerPhrases, ", ")))
		}
	}
	fmt.Fprintln(c.out)
}
