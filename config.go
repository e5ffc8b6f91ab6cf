package atlaschat

import (
	"context"
	"time"

	"github.com/atlasdocs/atlaschat/citations"
	"github.com/atlasdocs/atlaschat/models/gemini"
	"github.com/atlasdocs/atlaschat/server"
	"github.com/atlasdocs/atlaschat/sessions"
	"github.com/atlasdocs/atlaschat/stores"
)

// ChatConfig holds configuration for the chat service
type ChatConfig struct {
	ModelName       string
	FileSearchStore string
	SystemPrompt    string
	Store           stores.MessageStore
	MappingFetcher  citations.Fetcher
	MappingTTL      time.Duration
	RefreshSchedule string
}

// NewChatConfig creates a chat configuration with default values
func NewChatConfig() *ChatConfig {
	defaultStore, err := stores.NewSQLiteStoreDefault()
	if err != nil {
		panic("Failed to create default SQLite store: " + err.Error())
	}

	return &ChatConfig{
		ModelName:  "gemini-2.5-flash",
		Store:      defaultStore,
		MappingTTL: citations.DefaultTTL,
	}
}

// WithModelName sets the upstream model name
func (c *ChatConfig) WithModelName(modelName string) *ChatConfig {
	c.ModelName = modelName
	return c
}

// WithFileSearchStore sets the knowledge-source handle searched on each turn
func (c *ChatConfig) WithFileSearchStore(storeName string) *ChatConfig {
	c.FileSearchStore = storeName
	return c
}

// WithSystemPrompt sets the system instruction sent with every request
func (c *ChatConfig) WithSystemPrompt(prompt string) *ChatConfig {
	c.SystemPrompt = prompt
	return c
}

// WithStore sets the message store
func (c *ChatConfig) WithStore(store stores.MessageStore) *ChatConfig {
	c.Store = store
	return c
}

// WithSQLiteStore sets a SQLite store with the specified database path
func (c *ChatConfig) WithSQLiteStore(dbPath string) *ChatConfig {
	store, err := stores.NewSQLiteStoreSimple(dbPath)
	if err != nil {
		panic("Failed to create SQLite store: " + err.Error())
	}
	c.Store = store
	return c
}

// WithPostgresStore sets a PostgreSQL store from a DSN
func (c *ChatConfig) WithPostgresStore(dsn string) *ChatConfig {
	store, err := stores.NewPostgresStoreSimple(dsn)
	if err != nil {
		panic("Failed to create PostgreSQL store: " + err.Error())
	}
	c.Store = store
	return c
}

// WithMappingFile reads the file mapping from a local JSON document
func (c *ChatConfig) WithMappingFile(path string) *ChatConfig {
	c.MappingFetcher = &citations.FileFetcher{Path: path}
	return c
}

// WithMappingS3 reads the file mapping from an S3 object
func (c *ChatConfig) WithMappingS3(ctx context.Context, bucket, key string) *ChatConfig {
	fetcher, err := citations.NewS3Fetcher(ctx, bucket, key)
	if err != nil {
		panic("Failed to create S3 mapping fetcher: " + err.Error())
	}
	c.MappingFetcher = fetcher
	return c
}

// WithMappingTTL overrides the mapping cache TTL
func (c *ChatConfig) WithMappingTTL(ttl time.Duration) *ChatConfig {
	c.MappingTTL = ttl
	return c
}

// WithRefreshSchedule enables background mapping refresh on a cron schedule
func (c *ChatConfig) WithRefreshSchedule(spec string) *ChatConfig {
	c.RefreshSchedule = spec
	return c
}

// BuildServer assembles the model client, citation resolver and routes into
// a runnable Server. The background refresher, if scheduled, is started
// before returning.
func (c *ChatConfig) BuildServer() (*server.Server, error) {
	model := &gemini.Gemini_Model{
		Model:           c.ModelName,
		FileSearchStore: c.FileSearchStore,
		SystemPrompt:    c.SystemPrompt,
	}

	var resolver sessions.CitationResolver
	if c.MappingFetcher != nil {
		cache := citations.NewMappingCache(c.MappingFetcher, c.MappingTTL)
		resolver = citations.NewResolver(cache)

		if c.RefreshSchedule != "" {
			refresher, err := citations.NewRefresher(cache, c.RefreshSchedule)
			if err != nil {
				return nil, err
			}
			refresher.Start()
		}
	}

	return server.New(model, resolver, c.Store), nil
}
