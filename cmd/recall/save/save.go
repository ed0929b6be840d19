// Package savecmder provides the save command for indexing a memory file.
package savecmder

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/cmd/recall/bootstrap"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/engine"
	"github.com/papercomputeco/recall/pkg/memory"
)

type saveCommander struct {
	flags config.EngineFlagValues

	filePath   string
	specFolder string
	anchorID   string
	title      string
	triggers   []string
	importance float64
	jsonOut    bool
	configDir  string

	out    io.Writer
	v      *viper.Viper
	logger *slog.Logger
}

const saveLongDesc string = `Index a memory file.

The file stays where it is; the index records its path, spec folder, title
and trigger phrases. Trigger phrases are extracted from the file when none
are given with --trigger. The embedding is generated before the command
returns; if the model is unavailable the memory is kept and retried later.

Examples:
  recall save specs/001/memory/decisions.md --spec-folder specs/001
  recall save notes.md --spec-folder specs/002 --trigger "rate limiting" --trigger "api quota"
  recall save notes.md --spec-folder specs/002 --anchor decisions --importance 0.9`

const saveShortDesc string = "Index a memory file"

func NewSaveCmd() *cobra.Command {
	cmder := &saveCommander{}

	cmd := &cobra.Command{
		Use:   "save <file>",
		Short: saveShortDesc,
		Long:  saveLongDesc,
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
			cmder.filePath = args[0]
			cmder.out = cmd.OutOrStdout()
			cmder.logger = bootstrap.Logger(cmd)
			return cmder.run(cmd)
		},
	}

	config.AddEngineFlags(cmd, &cmder.flags)
	cmd.Flags().StringVarP(&cmder.specFolder, "spec-folder", "f", "", "Spec folder the memory belongs to (required)")
	cmd.Flags().StringVar(&cmder.anchorID, "anchor", "", "Anchor section the memory refers to")
	cmd.Flags().StringVar(&cmder.title, "title", "", "Title (default: file name)")
	cmd.Flags().StringArrayVarP(&cmder.triggers, "trigger", "t", nil, "Trigger phrase (repeatable)")
	cmd.Flags().Float64Var(&cmder.importance, "importance", 0, "Importance weight in [0,1] (default: 0.5)")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the saved record as JSON")
	_ = cmd.MarkFlagRequired("spec-folder")

	return cmd
}

func (c *saveCommander) run(cmd *cobra.Command) error {
	eng, err := bootstrap.Open(c.v, bootstrap.Options{ConfigDir: c.configDir, Logger: c.logger})
	if err != nil {
		return err
	}
	defer eng.Close()

	rec, err := eng.Save(cmd.Context(), engine.SaveRequest{
		SpecFolder:       c.specFolder,
		FilePath:         c.filePath,
		AnchorID:         c.anchorID,
		Title:            c.title,
		TriggerPhrases:   c.triggers,
		ImportanceWeight: c.importance,
	})
	if err != nil {
		return err
	}

	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Fprintf(c.out, "\n  %s Saved %s %s\n\n",
		cliui.SuccessMark,
		cliui.IDStyle.Render(fmt.Sprintf("#%d", rec.ID)),
		cliui.HeaderStyle.Render(rec.Title),
	)
	cliui.KeyValue(c.out, 10, "spec", rec.SpecFolder)
	cliui.KeyValue(c.out, 10, "file", rec.FilePath)
	cliui.KeyValue(c.out, 10, "triggers", strings.Join(rec.TriggerPhrases, ", "))
	cliui.KeyValue(c.out, 10, "embedding", embeddingLabel(rec))
	fmt.Fprintln(c.out)
	return nil
}

func embeddingLabel(rec *memory.Record) string {
	switch rec.Status {
	case memory.StatusCompleted:
		return string(rec.Status)
	case memory.StatusPending:
		return cliui.WarnStyle.Render(fmt.Sprintf("pending (attempt %d failed, will retry)", rec.RetryCount))
	default:
		return cliui.WarnStyle.Render(string(rec.Status))
	}
}
