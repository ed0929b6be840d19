package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger built by New.
type Option func(*config)

// WithDebug lowers the level to Debug when debug is set.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithPretty selects the colorized charmbracelet/log handler used by the CLI.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

// WithJSON selects slog's JSON handler, used for the serve log file.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithWriter sends output to w instead of os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writers = []io.Writer{w} }
}

// WithWriters fans output out to every w.
func WithWriters(w ...io.Writer) Option {
	return func(c *config) { c.writers = w }
}

// WithSource adds file:line to each record.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}

// WithComponent tags every record with a "component" attribute.
func WithComponent(name string) Option {
	return func(c *config) { c.component = name }
}
