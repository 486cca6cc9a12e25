package config

import "flag"

var (
	flagConfig       = flag.String("config", "", "Path to config file")
	flagDebug        = flag.Bool("debug", false, "Enable debug logging")
	flagInput        = flag.String("input", "", "OBJ mesh to partition (generates a plane when empty)")
	flagOutput       = flag.String("output", "", "Stream document to write")
	flagMaxTriangles = flag.Int("max-triangles", 0, "Triangle budget per partition")
	flagMaxIndices   = flag.Int("max-indices", 0, "Index budget per partition")
	flagFlags        = flag.String("flags", "", "Partition flags (merge,node-per-surface,uniformize,crack-free|all|none)")
	flagWatch        = flag.Bool("watch", false, "Re-run when the input changes")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagInput != "" {
		cfg.Input.Path = *flagInput
	}
	if *flagOutput != "" {
		cfg.Output.Document = *flagOutput
	}
	if *flagMaxTriangles > 0 {
		cfg.Partition.MaxTriangles = *flagMaxTriangles
	}
	if *flagMaxIndices > 0 {
		cfg.Partition.MaxIndices = *flagMaxIndices
	}
	if *flagFlags != "" {
		cfg.Partition.Flags = *flagFlags
	}
	if *flagWatch {
		cfg.Input.Watch = true
	}
}
