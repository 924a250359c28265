package dataset

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "titan:dataset:"
	redisTTL       = time.Hour
)

// Cache caches loaded datasets by result-file path. Entries are served from
// memory first, then from Redis when configured, then loaded from disk. A
// filesystem watcher invalidates entries when the underlying file changes,
// so a re-run of the analysis pipeline is picked up without a restart.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Dataset

	redis   *redis.Client
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewCache creates a dataset cache. redisClient may be nil, in which case
// only the in-process map is used.
func NewCache(redisClient *redis.Client) (*Cache, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	c := &Cache{
		entries: make(map[string]*Dataset),
		redis:   redisClient,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go c.watch()
	return c, nil
}

// Get returns the dataset for a result-file path, loading it on first use.
func (c *Cache) Get(ctx context.Context, path string) (*Dataset, error) {
	c.mu.RLock()
	ds, ok := c.entries[path]
	c.mu.RUnlock()
	if ok {
		return ds, nil
	}

	if ds := c.fromRedis(ctx, path); ds != nil {
		c.store(path, ds)
		return ds, nil
	}

	ds, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.store(path, ds)
	c.toRedis(ctx, path)
	return ds, nil
}

// Invalidate drops a cached dataset. Safe to call for unknown paths.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()

	if c.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := c.redis.Del(ctx, redisKeyPrefix+path).Err(); err != nil {
			slog.Warn("Failed to invalidate dataset in redis", "path", path, "error", err)
		}
	}
}

// Close stops the watcher.
func (c *Cache) Close() error {
	close(c.done)
	return c.watcher.Close()
}

func (c *Cache) store(path string, ds *Dataset) {
	c.mu.Lock()
	c.entries[path] = ds
	c.mu.Unlock()

	if err := c.watcher.Add(path); err != nil {
		slog.Warn("Failed to watch result file", "path", path, "error", err)
	}
}

func (c *Cache) watch() {
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Info("Result file changed, invalidating cache", "path", event.Name, "op", event.Op.String())
				c.Invalidate(event.Name)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Dataset watcher error", "error", err)
		}
	}
}

func (c *Cache) fromRedis(ctx context.Context, path string) *Dataset {
	if c.redis == nil {
		return nil
	}
	data, err := c.redis.Get(ctx, redisKeyPrefix+path).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("Dataset redis lookup failed", "path", path, "error", err)
		}
		return nil
	}
	ds, err := Parse(data)
	if err != nil {
		slog.Warn("Cached dataset is corrupt, reloading from disk", "path", path, "error", err)
		return nil
	}
	ds.path = path
	return ds
}

func (c *Cache) toRedis(ctx context.Context, path string) {
	if c.redis == nil {
		return
	}
	data, err := readResultFile(path)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+path, data, redisTTL).Err(); err != nil {
		slog.Warn("Failed to cache dataset in redis", "path", path, "error", err)
	}
}
