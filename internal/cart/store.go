package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
)

// FileName is the cart file inside the data directory.
const FileName = "cart.json"

// LockTimeout bounds the wait for another process holding the cart.
const LockTimeout = 2 * time.Second

// ErrLocked is returned when another process holds the cart lock too long.
var ErrLocked = errors.New("cart is locked by another preorder process")

// Store reads and writes the cart with a cross-process file lock.
type Store struct {
	dir string
}

// NewStore creates a cart store under dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the cart file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

func (s *Store) lockPath() string {
	return filepath.Join(s.dir, ".cart.lock")
}

// lock takes an exclusive lock on the cart. Unlike transient state, a lost
// cart update is visible to the user, so a timeout is an error.
func (s *Store) lock() (*flock.Flock, error) {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, err
	}

	fl := flock.New(s.lockPath())
	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLocked
		}
		return nil, err
	}
	if !locked {
		return nil, ErrLocked
	}
	return fl, nil
}

// Load reads the cart. A missing or unreadable file is an empty cart.
func (s *Store) Load() (*Cart, error) {
	fl, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer func() { _ = fl.Unlock() }()

	return s.loadUnsafe()
}

func (s *Store) loadUnsafe() (*Cart, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &Cart{}, nil
		}
		return nil, err
	}

	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return &Cart{}, nil //nolint:nilerr // a corrupt cart starts over
	}
	return &c, nil
}

func (s *Store) saveUnsafe(c *Cart) error {
	c.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.%d.tmp", s.Path(), os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if runtime.GOOS == "windows" {
		_ = os.Remove(s.Path())
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Update loads the cart, applies fn and saves the result while holding the
// lock. Nothing is saved when fn fails.
func (s *Store) Update(fn func(*Cart) error) (*Cart, error) {
	fl, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer func() { _ = fl.Unlock() }()

	c, err := s.loadUnsafe()
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.saveUnsafe(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear removes the cart file.
func (s *Store) Clear() error {
	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	err = os.Remove(s.Path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
