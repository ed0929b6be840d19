// Package retrycmder provides the retry command that re-attempts pending
// embeddings.
package retrycmder

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/cmd/recall/bootstrap"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/retry"
)

type retryCommander struct {
	flags config.EngineFlagValues

	jsonOut   bool
	configDir string

	out    io.Writer
	v      *viper.Viper
	logger *slog.Logger
}

const retryLongDesc string = `Retry pending embeddings.

Memories whose embedding failed are retried until the retry budget
(retry.max_attempts) is spent; after that they are marked failed and only
found through trigger phrases. recall serve runs this periodically.

Examples:
  recall retry
  RECALL_RETRY_MAX_ATTEMPTS=10 recall retry --json`

const retryShortDesc string = "Retry pending embeddings"

func NewRetryCmd() *cobra.Command {
	cmder := &retryCommander{}

	cmd := &cobra.Command{
		Use:   "retry",
		Short: retryShortDesc,
		Long:  retryLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bootstrap.Viper(cmd, config.EngineFlags, config.EngineFlagKeys)
			if err != nil {
				return err
			}
			cmder.v = v
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			cmder.logger = bootstrap.Logger(cmd)
			return cmder.run(cmd)
		},
	}

	config.AddEngineFlags(cmd, &cmder.flags)
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the result as JSON")

	return cmd
}

func (c *retryCommander) run(cmd *cobra.Command) error {
	eng, err := bootstrap.Open(c.v, bootstrap.Options{ConfigDir: c.configDir, Logger: c.logger})
	if err != nil {
		return err
	}
	defer eng.Close()

	var result retry.Result
	if c.jsonOut {
		result, err = eng.RetryFailed(cmd.Context())
		if err != nil {
			return err
		}
		return json.NewEncoder(c.out).Encode(result)
	}

	err = cliui.Step(c.out, "Retrying pending embeddings", func() error {
		var err error
		result, err = eng.RetryFailed(cmd.Context())
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s %s  %s %s  %s %s\n\n",
		cliui.KeyStyle.Render("retried"), cliui.ValueStyle.Render(fmt.Sprint(result.Retried)),
		cliui.KeyStyle.Render("succeeded"), cliui.ValueStyle.Render(fmt.Sprint(result.Succeeded)),
		cliui.KeyStyle.Render("exhausted"), cliui.WarnStyle.Render(fmt.Sprint(result.Exhausted)),
	)
	return nil
}
