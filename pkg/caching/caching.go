// Package caching keeps fetched detail pages so repeated runs can skip the
// network. Two backends exist: files on disk and memcached.
package caching

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dtnitsch/lead-crawler/internal/common"
)

// PageCache stores page bodies by URL.
type PageCache interface {
	// Get returns the body and true on a fresh hit.
	Get(url string) ([]byte, bool)
	Set(url string, data []byte) error
	Close() error
}

// FileCache provides a simple file-based cache with a TTL.
type FileCache struct {
	path string
	ttl  time.Duration
}

// NewFileCache creates a new FileCache instance.
// The cache path will be created if it doesn't exist.
func NewFileCache(path string, ttl time.Duration) (*FileCache, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileCache{
		path: path,
		ttl:  ttl,
	}, nil
}

func (c *FileCache) file(url string) string {
	return filepath.Join(c.path, common.ContentHash([]byte(url))+".html")
}

// Get retrieves an item from the cache.
// It returns the data and true if the item is found and not expired.
// Otherwise, it returns nil and false.
func (c *FileCache) Get(url string) ([]byte, bool) {
	filePath := c.file(url)

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, false
	}

	if c.ttl > 0 && time.Since(info.ModTime()) > c.ttl {
		return nil, false // expired
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, false
	}

	return data, true
}

// Set adds an item to the cache.
func (c *FileCache) Set(url string, data []byte) error {
	tmp, err := os.CreateTemp(c.path, ".page-*")
	if err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.file(url)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}

func (c *FileCache) Close() error { return nil }
