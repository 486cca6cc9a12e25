// Package config handles meshstream configuration loading and management.
package config

import (
	"fmt"

	"github.com/Faultbox/meshstream/internal/partition"
	"github.com/Faultbox/meshstream/pkg/streaming"
)

// Config holds all partitioning and streaming settings.
type Config struct {
	Partition PartitionConfig `yaml:"partition" toml:"partition"`
	Streaming StreamingConfig `yaml:"streaming" toml:"streaming"`
	Input     InputConfig     `yaml:"input" toml:"input"`
	Output    OutputConfig    `yaml:"output" toml:"output"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// PartitionConfig holds the partitioner budgets and behavior flags.
type PartitionConfig struct {
	Flags        string `yaml:"flags" toml:"flags"` // comma-separated, e.g. "crack-free,uniformize"
	MaxTriangles int    `yaml:"max_triangles" toml:"max_triangles"`
	MaxIndices   int    `yaml:"max_indices" toml:"max_indices"`
}

// StreamingConfig holds stream document settings.
type StreamingConfig struct {
	Embed           bool   `yaml:"embed" toml:"embed"`
	LinkedExtension string `yaml:"linked_extension" toml:"linked_extension"`
}

// InputConfig selects the mesh to partition. Without a path a plane is generated.
type InputConfig struct {
	Path  string      `yaml:"path" toml:"path"`
	Plane PlaneConfig `yaml:"plane" toml:"plane"`
	Watch bool        `yaml:"watch" toml:"watch"`
	// WatchDebounceMS coalesces bursts of file events.
	WatchDebounceMS int `yaml:"watch_debounce_ms" toml:"watch_debounce_ms"`
}

// PlaneConfig describes the generated demo grid.
type PlaneConfig struct {
	Width    float32 `yaml:"width" toml:"width"`
	Height   float32 `yaml:"height" toml:"height"`
	Segments int     `yaml:"segments" toml:"segments"`
}

// OutputConfig holds output file paths.
type OutputConfig struct {
	Document string `yaml:"document" toml:"document"`
	Manifest string `yaml:"manifest" toml:"manifest"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Partition: PartitionConfig{
			Flags:        partition.ApplyCrackFreePolicy.String(),
			MaxTriangles: partition.DefaultMaxNumTrianglesPerNode,
			MaxIndices:   partition.DefaultMaxNumIndicesPerNode,
		},
		Streaming: StreamingConfig{
			Embed:           true,
			LinkedExtension: ".msa",
		},
		Input: InputConfig{
			Plane: PlaneConfig{
				Width:    100,
				Height:   100,
				Segments: 64,
			},
			WatchDebounceMS: 200,
		},
		Output: OutputConfig{
			Document: "scene.msd",
			Manifest: "scene.json",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Options converts the partition section to partitioner options.
func (c *Config) Options() (partition.Options, error) {
	flags, err := partition.ParseFlags(c.Partition.Flags)
	if err != nil {
		return partition.Options{}, fmt.Errorf("partition flags: %w", err)
	}
	return partition.Options{
		Flags:                  flags,
		MaxNumTrianglesPerNode: c.Partition.MaxTriangles,
		MaxNumIndicesPerNode:   c.Partition.MaxIndices,
	}, nil
}

// WriterOptions converts the streaming section to stream writer options.
func (c *Config) WriterOptions() streaming.WriterOptions {
	opts := streaming.DefaultWriterOptions()
	opts.Embed = c.Streaming.Embed
	if c.Streaming.LinkedExtension != "" {
		opts.LinkedExtension = c.Streaming.LinkedExtension
	}
	return opts
}
