// Package commune maintains the local commune referential: a flat JSON file
// mapping INSEE code to commune name, postal codes and centroid coordinates,
// rebuilt in bulk from the national commune listing when missing or stale.
package commune

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/studio-carto/prospect-cli/pkg/geoapi"
)

// ErrUnknownCode is returned when a code is absent from a fresh referential.
// It is distinct from retrieval failures: the code genuinely does not exist.
var ErrUnknownCode = eris.New("commune: unknown code")

// Commune is one cached entry. Coordinates prefer the town hall location over
// the geometric centroid when the source provides both.
type Commune struct {
	Code         string   `json:"code"`
	Nom          string   `json:"nom"`
	CodesPostaux []string `json:"codes_postaux"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
}

// Lister fetches the full commune referential from the reference API.
type Lister interface {
	ListCommunes(ctx context.Context) ([]geoapi.Commune, error)
}

// Cache is the stateful handle over the commune referential. The file is read
// at most once per process; a rebuild downloads the full national listing,
// persists it with a full-file replace, then swaps the in-memory map.
type Cache struct {
	path   string
	lister Lister

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]Commune
	loaded  bool
	rebuilt bool
}

// NewCache creates a cache handle backed by the given file path.
func NewCache(path string, lister Lister) *Cache {
	return &Cache{path: path, lister: lister}
}

// Resolve returns the commune for an INSEE code. A miss triggers one full
// rebuild per process before concluding the code does not exist.
func (c *Cache) Resolve(ctx context.Context, code string) (Commune, error) {
	if err := c.ensureLoaded(); err != nil {
		return Commune{}, err
	}

	c.mu.RLock()
	entry, ok := c.entries[code]
	rebuilt := c.rebuilt
	c.mu.RUnlock()
	if ok {
		return entry, nil
	}

	if !rebuilt {
		if err := c.Refresh(ctx); err != nil {
			return Commune{}, err
		}
		c.mu.RLock()
		entry, ok = c.entries[code]
		c.mu.RUnlock()
		if ok {
			return entry, nil
		}
	}

	return Commune{}, eris.Wrapf(ErrUnknownCode, "resolve %q", code)
}

// All returns every known commune, rebuilding the referential first when the
// cache is empty. The order is unspecified.
func (c *Cache) All(ctx context.Context) ([]Commune, error) {
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	if n == 0 {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Commune, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out, nil
}

// Len reports how many communes are currently cached, without triggering a
// rebuild.
func (c *Cache) Len() (int, error) {
	if err := c.ensureLoaded(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

// Refresh downloads the full referential and replaces both the cache file and
// the in-memory map. On failure the previous state is left untouched.
// Concurrent calls collapse into a single download.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		list, err := c.lister.ListCommunes(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "commune: refresh referential")
		}

		entries := make(map[string]Commune, len(list))
		skipped := 0
		for _, rc := range list {
			lat, lon, ok := rc.LatLon()
			if !ok {
				skipped++
				continue
			}
			entries[rc.Code] = Commune{
				Code:         rc.Code,
				Nom:          rc.Nom,
				CodesPostaux: rc.CodesPostaux,
				Latitude:     lat,
				Longitude:    lon,
			}
		}
		if skipped > 0 {
			zap.L().Warn("skipped communes without usable coordinates",
				zap.Int("skipped", skipped))
		}

		if err := c.save(entries); err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries = entries
		c.loaded = true
		c.rebuilt = true
		c.mu.Unlock()

		zap.L().Info("commune referential rebuilt",
			zap.Int("communes", len(entries)),
			zap.String("path", c.path))
		return nil, nil
	})
	return err
}

func (c *Cache) ensureLoaded() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.entries = map[string]Commune{}
			c.loaded = true
			return nil
		}
		return eris.Wrapf(err, "commune: read cache %s", c.path)
	}

	var entries map[string]Commune
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt cache is not fatal: start empty and let the next use rebuild.
		zap.L().Warn("ignoring corrupt commune cache",
			zap.String("path", c.path), zap.Error(err))
		entries = nil
	}
	if entries == nil {
		entries = map[string]Commune{}
	}
	c.entries = entries
	c.loaded = true
	return nil
}

// save writes the referential to a temp file in the target directory and
// renames it over the cache path, so a crash mid-write never corrupts the file.
func (c *Cache) save(entries map[string]Commune) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "commune: create cache dir %s", dir)
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return eris.Wrap(err, "commune: encode cache")
	}

	tmp, err := os.CreateTemp(dir, ".communes-*.json")
	if err != nil {
		return eris.Wrap(err, "commune: create temp cache")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return eris.Wrap(err, "commune: write cache")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return eris.Wrap(err, "commune: close temp cache")
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		_ = os.Remove(tmpPath)
		return eris.Wrapf(err, "commune: replace cache %s", c.path)
	}
	return nil
}
