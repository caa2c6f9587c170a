// Package store holds the product store backends.
package store

import (
	"fmt"

	"github.com/hyperterse/hypercluster/core/config"
	"github.com/hyperterse/hypercluster/core/domain/interfaces"
)

// Open creates the store selected by cfg.
func Open(cfg config.StoreConfig) (interfaces.ProductStore, error) {
	switch cfg.Driver {
	case "", config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StorePostgres:
		return NewPostgresStore(cfg.URL)
	case config.StoreMySQL:
		return NewMySQLStore(cfg.URL)
	case config.StoreMongoDB:
		return NewMongoDBStore(cfg.URL)
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
}
