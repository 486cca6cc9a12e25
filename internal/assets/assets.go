// Package assets keeps the generated geometries and materials addressable by name,
// and caches linked asset bytes fetched while resolving stream headers.
package assets

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Faultbox/meshstream/internal/scene"
	"github.com/Faultbox/meshstream/pkg/geometry"
)

// GeometryExt is appended to registered geometry names.
const GeometryExt = ".geometry"

// Library is the name registry other collaborators use to look up partition output.
type Library struct {
	geometries map[string]*geometry.Geometry
	materials  map[string]*scene.Material
	order      []string
	mu         sync.RWMutex
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{
		geometries: make(map[string]*geometry.Geometry),
		materials:  make(map[string]*scene.Material),
	}
}

// RegisterGeometry stores g under a name derived from base, renames g to it and returns it.
// A uuid suffix is added when base is empty or already taken.
func (l *Library) RegisterGeometry(base string, g *geometry.Geometry) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	base = strings.TrimSuffix(base, GeometryExt)
	name := base + GeometryExt
	for _, taken := l.geometries[name]; base == "" || taken; _, taken = l.geometries[name] {
		base = strings.TrimPrefix(base+"_"+uuid.NewString(), "_")
		name = base + GeometryExt
	}

	g.Name = name
	l.geometries[name] = g
	l.order = append(l.order, name)
	return name
}

// Geometry looks up a geometry by registered name.
func (l *Library) Geometry(name string) (*geometry.Geometry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.geometries[name]
	return g, ok
}

// GeometryNames returns registered geometry names in registration order.
func (l *Library) GeometryNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// RegisterMaterial stores m under its name, replacing any previous entry.
func (l *Library) RegisterMaterial(m *scene.Material) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.materials[m.Name] = m
}

// Material looks up a material by name.
func (l *Library) Material(name string) (*scene.Material, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.materials[name]
	return m, ok
}

// MaterialNames returns the registered material names, sorted.
func (l *Library) MaterialNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.materials))
	for name := range l.materials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cache is a simple in-memory cache for linked asset bytes.
type Cache struct {
	data map[string][]byte
	mu   sync.RWMutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Stats returns hit and miss counts since the last Clear.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}
