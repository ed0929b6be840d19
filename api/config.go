// Package api provides the HTTP API server for saving, searching and loading
// memories.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8082")
	ListenAddr string
}
