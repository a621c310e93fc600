// Package completion provides tab completion support for the preorder CLI.
// It keeps a small file-based cache of menu items, users and orders so shell
// completions work without calling the backend.
package completion

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/preorder/preorder-cli/internal/models"
)

// CachedItem holds menu item data for tab completion.
type CachedItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// CachedUser holds account data for tab completion. Only admins list users,
// so this section stays empty for customers.
type CachedUser struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// CachedOrder holds order data for tab completion.
type CachedOrder struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Cache stores completion data with per-section timestamps.
type Cache struct {
	Items           []CachedItem  `json:"items,omitempty"`
	Users           []CachedUser  `json:"users,omitempty"`
	Orders          []CachedOrder `json:"orders,omitempty"`
	ItemsUpdatedAt  time.Time     `json:"items_updated_at,omitempty"`
	UsersUpdatedAt  time.Time     `json:"users_updated_at,omitempty"`
	OrdersUpdatedAt time.Time     `json:"orders_updated_at,omitempty"`
	Version         int           `json:"version"`
}

const (
	// CacheVersion is the current cache schema version.
	CacheVersion = 1

	// DefaultMaxAge is the default cache staleness threshold.
	DefaultMaxAge = time.Hour

	// CacheFileName is the cache file name inside the data directory.
	CacheFileName = "completion.json"
)

// Store handles reading and writing the completion cache.
type Store struct {
	dir string
	mu  sync.RWMutex
	now func() time.Time
}

// NewStore creates a cache store in dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the cache directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path to the cache file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, CacheFileName)
}

// Load reads the cache from disk.
// Returns an empty cache if the file doesn't exist or is invalid.
func (s *Store) Load() (*Cache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadUnsafe()
}

func (s *Store) loadUnsafe() (*Cache, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &Cache{Version: CacheVersion}, nil
		}
		return nil, err
	}

	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return &Cache{Version: CacheVersion}, nil //nolint:nilerr // a corrupted cache is rebuilt on the next listing
	}

	return &cache, nil
}

func (s *Store) saveUnsafe(cache *Cache) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	cache.Version = CacheVersion

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, CacheFileName+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.Path()); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// update applies fn to the stored cache and writes it back.
func (s *Store) update(fn func(c *Cache, now time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.loadUnsafe()
	if err != nil {
		cache = &Cache{Version: CacheVersion}
	}
	fn(cache, s.now())
	return s.saveUnsafe(cache)
}

// UpdateItems replaces the cached menu items.
func (s *Store) UpdateItems(items []models.Item) error {
	cached := make([]CachedItem, len(items))
	for i, it := range items {
		cached[i] = CachedItem{ID: it.ID.String(), Name: it.Name, Available: it.Available}
	}
	return s.update(func(c *Cache, now time.Time) {
		c.Items = cached
		c.ItemsUpdatedAt = now
	})
}

// UpdateUsers replaces the cached accounts.
func (s *Store) UpdateUsers(users []models.User) error {
	cached := make([]CachedUser, len(users))
	for i, u := range users {
		cached[i] = CachedUser{Username: u.Username, Name: u.Name}
	}
	return s.update(func(c *Cache, now time.Time) {
		c.Users = cached
		c.UsersUpdatedAt = now
	})
}

// UpdateOrders replaces the cached orders.
func (s *Store) UpdateOrders(orders []models.Order) error {
	cached := make([]CachedOrder, len(orders))
	for i, o := range orders {
		cached[i] = CachedOrder{ID: o.ID.String(), Username: o.Username, Status: string(o.StatusOrDefault())}
	}
	return s.update(func(c *Cache, now time.Time) {
		c.Orders = cached
		c.OrdersUpdatedAt = now
	})
}

// IsStale reports whether the menu section is missing or older than maxAge.
// Users and orders are optional: customers never fill the users section.
func (s *Store) IsStale(maxAge time.Duration) bool {
	cache, err := s.Load()
	if err != nil {
		return true
	}
	if cache.ItemsUpdatedAt.IsZero() {
		return true
	}
	return s.now().Sub(cache.ItemsUpdatedAt) > maxAge
}

// Clear removes the cache file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.Path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Items returns cached menu items, or nil if the cache is empty or missing.
func (s *Store) Items() []CachedItem {
	cache, err := s.Load()
	if err != nil {
		return nil
	}
	return cache.Items
}

// Users returns cached accounts, or nil if the cache is empty or missing.
func (s *Store) Users() []CachedUser {
	cache, err := s.Load()
	if err != nil {
		return nil
	}
	return cache.Users
}

// Orders returns cached orders, or nil if the cache is empty or missing.
func (s *Store) Orders() []CachedOrder {
	cache, err := s.Load()
	if err != nil {
		return nil
	}
	return cache.Orders
}
