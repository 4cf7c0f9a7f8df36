package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// FileRepository stores products in a single JSON file. Reads are served from
// an in-memory copy loaded lazily on first use; writes rewrite the file
// atomically. Safe for concurrent use.
type FileRepository struct {
	path string

	mu       sync.RWMutex
	products []Product
	loaded   bool

	// group collapses concurrent first loads into one file read.
	group singleflight.Group
}

// NewFileRepository creates a repository backed by path. When the file does
// not exist it is created holding an empty catalog.
func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("catalog: create data directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("[]\n"), 0o644); err != nil {
			return nil, fmt.Errorf("catalog: create data file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("catalog: stat data file: %w", err)
	}
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) load() error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, _ := r.group.Do("load", func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.loaded {
			return nil, nil
		}
		return nil, r.loadLocked()
	})
	return err
}

func (r *FileRepository) loadLocked() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("catalog: read data file: %w", err)
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return fmt.Errorf("catalog: parse data file: %w", err)
	}
	r.products = products
	r.loaded = true
	return nil
}

// FindByID returns the product with the given id, or ErrNotFound.
func (r *FileRepository) FindByID(ctx context.Context, id string) (Product, error) {
	if err := r.load(); err != nil {
		return Product{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// FindAll returns a copy of the whole catalog.
func (r *FileRepository) FindAll(ctx context.Context) ([]Product, error) {
	if err := r.load(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Product, len(r.products))
	copy(out, r.products)
	return out, nil
}

// FindByCategory returns the products in the given category.
func (r *FileRepository) FindByCategory(ctx context.Context, category string) ([]Product, error) {
	if err := r.load(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Product
	for _, p := range r.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindSimilar returns up to limit products sharing category, excluding
// excludeID. A positive maxPrice caps the price of the results.
func (r *FileRepository) FindSimilar(ctx context.Context, category, excludeID string, maxPrice float64, limit int) ([]Product, error) {
	if err := r.load(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Product
	for _, p := range r.products {
		if p.ID == excludeID || p.Category != category {
			continue
		}
		if maxPrice > 0 && p.Price > maxPrice {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Save inserts or replaces a product and rewrites the data file. A product
// without an ID is assigned the next numeric one.
func (r *FileRepository) Save(ctx context.Context, p Product) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		if err := r.loadLocked(); err != nil {
			return Product{}, err
		}
	}

	now := timeNow()
	if p.ID == "" {
		p.ID = strconv.Itoa(r.nextIDLocked())
		p.CreatedAt = now
	} else if existing, i := r.indexLocked(p.ID); i >= 0 {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if _, i := r.indexLocked(p.ID); i >= 0 {
		r.products[i] = p
	} else {
		r.products = append(r.products, p)
	}
	if err := r.persistLocked(); err != nil {
		return Product{}, err
	}
	return p, nil
}

// DeleteByID removes the product with the given id. Deleting an absent id is
// not an error.
func (r *FileRepository) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		if err := r.loadLocked(); err != nil {
			return err
		}
	}
	if _, i := r.indexLocked(id); i >= 0 {
		r.products = append(r.products[:i], r.products[i+1:]...)
		return r.persistLocked()
	}
	return nil
}

func (r *FileRepository) indexLocked(id string) (Product, int) {
	for i, p := range r.products {
		if p.ID == id {
			return p, i
		}
	}
	return Product{}, -1
}

func (r *FileRepository) nextIDLocked() int {
	max := 0
	for _, p := range r.products {
		if n, err := strconv.Atoi(p.ID); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// persistLocked rewrites the data file via a temp file and rename so a crash
// mid-write never truncates the catalog.
func (r *FileRepository) persistLocked() error {
	sort.Slice(r.products, func(i, j int) bool { return r.products[i].ID < r.products[j].ID })
	data, err := json.MarshalIndent(r.products, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: encode data file: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("catalog: write data file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("catalog: replace data file: %w", err)
	}
	return nil
}
