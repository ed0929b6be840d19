// Package servecmder provides the serve command that runs the recall API and
// MCP server.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/api"
	"github.com/papercomputeco/recall/api/mcp"
	"github.com/papercomputeco/recall/cmd/recall/bootstrap"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/engine"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/watch"
)

type ServeCommander struct {
	flags config.EngineFlagValues

	listen         string
	retryInterval  string
	eventsProvider string
	eventsTopic    string
	logFile        string
	noWatch        bool
	noMCP          bool
	configDir      string

	v      *viper.Viper
	logger *slog.Logger
}

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagRetryInterval,
	config.FlagEventsProvider,
	config.FlagEventsTopic,
}

const serveLongDesc string = `Run the recall server.

Serves the REST API and, at /mcp, the MCP tools memory_search, memory_load,
memory_match_triggers and memory_save. While running, the server:
  - embeds saved memories in the background,
  - retries failed embeddings every --retry-interval,
  - clears the trigger cache when memory files under --memory-root change.

Examples:
  recall serve
  recall serve --listen :9000 --memory-root ./specs
  recall serve --events-provider kafka --log-file recall.log`

const serveShortDesc string = "Run the recall API and MCP server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bootstrap.Viper(cmd, config.EngineFlags, config.EngineFlagKeys)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)
			cmder.v = v
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(debug)
		},
	}

	config.AddEngineFlags(cmd, &cmder.flags)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagRetryInterval, &cmder.retryInterval)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsTopic, &cmder.eventsTopic)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")
	cmd.Flags().BoolVar(&cmder.noWatch, "no-watch", false, "Do not watch memory files for changes")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Do not mount the MCP server")

	return cmd
}

func (c *ServeCommander) run(debug bool) error {
	log, closeLog, err := c.newLogger(debug)
	if err != nil {
		return err
	}
	defer closeLog()
	c.logger = log

	interval, err := config.ParseDuration("retry.interval", c.v.GetString("retry.interval"))
	if err != nil {
		return err
	}

	// Network callers name files, so the server always confines them to a root.
	if c.v.GetString("storage.memory_root") == "" {
		c.v.Set("storage.memory_root", ".")
	}

	eng, err := bootstrap.Open(c.v, bootstrap.Options{
		ConfigDir: c.configDir,
		Async:     true,
		Events:    true,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			c.logger.Error("closing engine", "error", err)
		}
	}()

	// Background loops use the engine, so they stop before the deferred Close.
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		wg.Wait()
	}()

	if err := eng.WarmTriggers(ctx); err != nil {
		c.logger.Warn("trigger cache not warmed, will load on first match", "error", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Engine: eng,
		Noop:   c.noMCP,
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer := api.NewServer(api.Config{
		ListenAddr: c.v.GetString("api.listen"),
	}, eng, mcpServer.Handler(), c.logger)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	if !c.noWatch {
		if err := c.startWatcher(ctx, &wg, eng, errChan); err != nil {
			return err
		}
	}

	if interval > 0 {
		wg.Go(func() { c.retryLoop(ctx, eng, interval) })
	}

	c.logger.Info("recall server ready",
		"listen", c.v.GetString("api.listen"),
		"degraded", eng.Degraded(),
		"retry_interval", interval,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-errChan:
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	}

	cancel()
	wg.Wait()
	return errors.Join(err, apiServer.Shutdown())
}

func (c *ServeCommander) startWatcher(ctx context.Context, wg *sync.WaitGroup, eng *engine.Engine, errChan chan<- error) error {
	w, err := watch.New(watch.Config{Root: c.v.GetString("storage.memory_root"), Logger: c.logger}, eng)
	if err != nil {
		return fmt.Errorf("watching memory files: %w", err)
	}

	wg.Go(func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("watcher error: %w", err)
		}
	})
	return nil
}

// retryLoop runs an embedding retry pass every interval until ctx ends.
func (c *ServeCommander) retryLoop(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := eng.RetryFailed(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("embedding retry pass failed", "error", err)
			}
		}
	}
}

// newLogger builds the pretty stderr logger, fanned out to a JSON log file
// when --log-file is set.
func (c *ServeCommander) newLogger(debug bool) (*slog.Logger, func(), error) {
	pretty := logger.New(logger.WithDebug(debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))
	if c.logFile == "" {
		return pretty, func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(logger.WithDebug(debug), logger.WithJSON(true), logger.WithWriter(f), logger.WithComponent("recall-serve"))
	return logger.Multi(pretty, file), func() { _ = f.Close() }, nil
}
