// Package vectorutils opens a vector-capable store and selects the index
// strategy for it.
package vectorutils

import (
	"fmt"
	"log/slog"

	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	"github.com/papercomputeco/recall/pkg/storage/sqlite"
	"github.com/papercomputeco/recall/pkg/vector"
)

const (
	ProviderSQLite   = "sqlite"
	ProviderInMemory = "memory"
)

type NewIndexOpts struct {
	ProviderType  string
	DBPath        string
	Dimensions    uint
	DisableVector bool
	Logger        *slog.Logger
}

// NewStore opens the store named by o.ProviderType.
func NewStore(o *NewIndexOpts) (storage.VectorStore, error) {
	switch o.ProviderType {
	case ProviderSQLite, "":
		return sqlite.NewDriver(sqlite.Config{
			DBPath:        o.DBPath,
			Dimensions:    o.Dimensions,
			DisableVector: o.DisableVector,
		}, o.Logger)
	case ProviderInMemory:
		return inmemory.NewDriver(inmemory.Config{
			Dimensions:    o.Dimensions,
			DisableVector: o.DisableVector,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported store provider: %s", o.ProviderType)
	}
}

// NewIndex opens the store and wraps it in the index strategy its
// capabilities allow. The caller owns the returned store.
func NewIndex(o *NewIndexOpts) (vector.Index, storage.VectorStore, error) {
	store, err := NewStore(o)
	if err != nil {
		return nil, nil, err
	}
	return vector.NewIndex(store, o.Logger), store, nil
}
