package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/Faultbox/meshstream/internal/assets"
	"github.com/Faultbox/meshstream/internal/config"
	"github.com/Faultbox/meshstream/internal/logger"
	"github.com/Faultbox/meshstream/internal/partition"
	"github.com/Faultbox/meshstream/internal/scene"
	"github.com/Faultbox/meshstream/pkg/formats"
	"github.com/Faultbox/meshstream/pkg/geometry"
	"github.com/Faultbox/meshstream/pkg/streaming"
)

// Manifest summarizes one partitioning run next to the stream document.
type Manifest struct {
	Input        string                 `json:"input"`
	Document     string                 `json:"document"`
	Flags        string                 `json:"flags"`
	MaxTriangles int                    `json:"max_triangles"`
	MaxIndices   int                    `json:"max_indices"`
	Triangles    int                    `json:"triangles"`
	Elapsed      string                 `json:"elapsed"`
	Partitions   []partition.LeafReport `json:"partitions"`
	Entries      []ManifestEntry        `json:"entries"`
}

// ManifestEntry is one chunk of the written document.
type ManifestEntry struct {
	Name     string `json:"name"`
	Metadata string `json:"metadata"`
	Size     int64  `json:"size"`
}

var errNoGeometry = errors.New("input has no geometry")

// run loads the input, partitions it and writes the document and manifest.
func run(cfg *config.Config) (*Manifest, error) {
	start := time.Now()

	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	root, triangles, err := loadScene(cfg.Input)
	if err != nil {
		return nil, err
	}
	if triangles == 0 {
		return nil, errNoGeometry
	}

	lib := assets.NewLibrary()
	p := partition.New(opts)
	if err := p.Process(root, lib); err != nil {
		return nil, fmt.Errorf("partitioning: %w", err)
	}

	entries, err := writeDocument(cfg.Output.Document, cfg.WriterOptions(), p.Reports(), lib)
	if err != nil {
		return nil, err
	}

	effective := p.Options()
	m := &Manifest{
		Input:        inputName(cfg.Input),
		Document:     cfg.Output.Document,
		Flags:        effective.Flags.String(),
		MaxTriangles: effective.MaxNumTrianglesPerNode,
		MaxIndices:   effective.MaxNumIndicesPerNode,
		Triangles:    triangles,
		Elapsed:      time.Since(start).Round(time.Millisecond).String(),
		Partitions:   p.Reports(),
		Entries:      entries,
	}
	if cfg.Output.Manifest != "" {
		if err := writeManifest(cfg.Output.Manifest, m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func inputName(in config.InputConfig) string {
	if in.Path != "" {
		return in.Path
	}
	return fmt.Sprintf("plane %gx%g/%d", in.Plane.Width, in.Plane.Height, in.Plane.Segments)
}

// loadScene builds a scene with one node holding a surface per OBJ group, or a generated plane.
func loadScene(in config.InputConfig) (*scene.Node, int, error) {
	root := scene.NewNode("scene")

	if in.Path == "" {
		plane := geometry.GeneratePlane(geometry.PlaneConfig{
			Name:      "plane",
			Width:     in.Plane.Width,
			Height:    in.Plane.Height,
			SegmentsX: in.Plane.Segments,
			SegmentsY: in.Plane.Segments,
		})
		node := scene.NewNode("plane")
		node.AddComponent(scene.NewSurface("plane", plane, &scene.Material{Name: "default"}))
		root.AddChild(node)
		return root, plane.NumTriangles(), nil
	}

	obj, err := formats.ParseOBJFile(in.Path)
	if err != nil {
		return nil, 0, err
	}

	name := strings.TrimSuffix(filepath.Base(in.Path), filepath.Ext(in.Path))
	node := scene.NewNode(name)
	materials := make(map[string]*scene.Material)
	for _, g := range obj.Groups {
		mat := materials[g.Material]
		if mat == nil {
			mat = &scene.Material{Name: g.Material}
			materials[g.Material] = mat
		}
		node.AddComponent(scene.NewSurface(g.Name, g.Geometry, mat))
	}
	root.AddChild(node)

	logger.Debug("input loaded",
		zap.String("path", in.Path),
		zap.Int("groups", len(obj.Groups)),
		zap.Strings("material_libs", obj.MaterialLibs))
	return root, obj.TotalTriangles(), nil
}

// writeDocument streams every partition geometry into a new document.
func writeDocument(path string, opts streaming.WriterOptions, reports []partition.LeafReport, lib *assets.Library) ([]ManifestEntry, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	w, err := streaming.Create(path, opts)
	if err != nil {
		return nil, err
	}

	var entries []ManifestEntry
	for _, r := range reports {
		g, ok := lib.Geometry(r.Geometry)
		if !ok {
			w.Close()
			return nil, fmt.Errorf("partition geometry %s not registered", r.Geometry)
		}
		e, err := w.WriteGeometry(r.Geometry, g)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("writing %s: %w", r.Geometry, err)
		}
		entries = append(entries, ManifestEntry{Name: e.Name, Metadata: e.Metadata.String(), Size: e.Size})
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing document: %w", err)
	}
	return entries, nil
}

func writeManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
