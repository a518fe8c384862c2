package sqlstore

import (
	"context"
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds and caches the bun-backed stores over one
// database handle.
type RepositoryFactory struct {
	db *bun.DB

	syncCursorStore *SyncCursorStore
	eventIndexStore *EventIndexStore
	kvStore         *KVStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.syncCursorStore != nil && f.eventIndexStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) SyncCursorStore() *SyncCursorStore {
	if f == nil {
		return nil
	}
	return f.syncCursorStore
}

func (f *RepositoryFactory) EventIndexStore() *EventIndexStore {
	if f == nil {
		return nil
	}
	return f.eventIndexStore
}

func (f *RepositoryFactory) KVStore() *KVStore {
	if f == nil {
		return nil
	}
	return f.kvStore
}

// EnsureSchema creates the backing tables when they do not exist yet. The
// deployment target is a single embedded database, so model-driven table
// creation replaces a migration pipeline.
func (f *RepositoryFactory) EnsureSchema(ctx context.Context) error {
	if f == nil || f.db == nil {
		return fmt.Errorf("sqlstore: repository factory is not configured")
	}
	models := []any{
		(*syncCursorRecord)(nil),
		(*eventIndexRecord)(nil),
		(*kvRecord)(nil),
	}
	for _, model := range models {
		if _, err := f.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: create table for %T: %w", model, err)
		}
	}
	return nil
}

func (f *RepositoryFactory) initStores() error {
	syncCursorStore, err := NewSyncCursorStore(f.db)
	if err != nil {
		return err
	}
	f.syncCursorStore = syncCursorStore

	eventIndexStore, err := NewEventIndexStore(f.db)
	if err != nil {
		return err
	}
	f.eventIndexStore = eventIndexStore

	kvStore, err := NewKVStore(f.db)
	if err != nil {
		return err
	}
	f.kvStore = kvStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
