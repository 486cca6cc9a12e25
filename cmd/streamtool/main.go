// streamtool is a CLI utility for inspecting meshstream documents.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/segmentio/encoding/json"

	"github.com/Faultbox/meshstream/internal/assets"
	"github.com/Faultbox/meshstream/pkg/formats"
	"github.com/Faultbox/meshstream/pkg/geometry"
	"github.com/Faultbox/meshstream/pkg/streaming"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "list", "ls":
		cmdList(args)
	case "headers":
		cmdHeaders(args)
	case "extract", "x":
		cmdExtract(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`streamtool - meshstream document utility

Usage:
  streamtool <command> [options]

Commands:
  info <file.msd>                      Show document information
  list <file.msd> [pattern]            List entries (optional glob pattern)
  headers [-json] <file.msd>           Resolve and print every geometry header
  extract <file.msd> <name> [output]   Extract geometries as OBJ files

Examples:
  streamtool info scene.msd
  streamtool list scene.msd "terrain_part*"
  streamtool headers -json scene.msd
  streamtool extract scene.msd "terrain_part*" ./output`)
}

func openDocument(path string) *streaming.Document {
	doc, err := streaming.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return doc
}

func newFetcher(doc *streaming.Document) (*streaming.FileFetcher, *assets.Cache) {
	cache := assets.NewCache()
	return streaming.NewFileFetcher(filepath.Dir(doc.Path()), cache), cache
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: streamtool info <file.msd>")
		os.Exit(1)
	}

	doc := openDocument(args[0])
	defer doc.Close()

	names := doc.List()

	// Count by asset type and storage
	typeCount := make(map[string]int)
	inline := 0
	var totalSize int64
	for _, name := range names {
		e, _ := doc.Entry(name)
		typeCount[e.Metadata.AssetType().String()]++
		if e.Metadata.HasHeader() {
			inline++
		}
		totalSize += e.Size
	}

	fmt.Printf("Document: %s\n", args[0])
	fmt.Printf("Version:  %d\n", doc.Version())
	fmt.Printf("Entries:  %d (%d inline, %d linked)\n", len(names), inline, len(names)-inline)
	fmt.Printf("Size:     %.2f KB\n", float64(totalSize)/1024)
	fmt.Println()

	deps := doc.Dependencies().LinkedAssets()
	fmt.Printf("Linked assets: %d\n", len(deps))
	for i, la := range deps {
		fmt.Printf("  #%-4d %-8s %s [%d, +%d)\n", i, linkTypeName(la.LinkType), la.Filename, la.Offset, la.Length)
	}
	fmt.Println()
	fmt.Println("Entries by type:")

	type typeStat struct {
		name  string
		count int
	}
	var stats []typeStat
	for name, count := range typeCount {
		stats = append(stats, typeStat{name, count})
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].count > stats[j].count
	})

	for _, s := range stats {
		fmt.Printf("  %-10s %d\n", s.name, s.count)
	}
}

func linkTypeName(t streaming.LinkType) string {
	if t == streaming.LinkInternal {
		return "internal"
	}
	return "external"
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("n", 0, "Limit output to N entries (0 = all)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: streamtool list <file.msd> [pattern]")
		os.Exit(1)
	}

	doc := openDocument(fs.Arg(0))
	defer doc.Close()

	pattern := ""
	if fs.NArg() > 1 {
		pattern = fs.Arg(1)
	}

	count := 0
	for _, name := range doc.List() {
		if pattern != "" && !matches(pattern, name) {
			continue
		}
		e, _ := doc.Entry(name)
		fmt.Printf("%-40s %s\n", name, e.Metadata)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	if pattern != "" {
		fmt.Fprintf(os.Stderr, "\n(%d entries matched)\n", count)
	}
}

// matches accepts glob patterns and plain substrings.
func matches(pattern, name string) bool {
	pattern, name = strings.ToLower(pattern), strings.ToLower(name)
	if ok, _ := filepath.Match(pattern, name); ok {
		return true
	}
	return !strings.ContainsAny(pattern, "*?[") && strings.Contains(name, pattern)
}

type headerJSON struct {
	Name           string   `json:"name"`
	Metadata       string   `json:"metadata"`
	Attributes     []string `json:"attributes"`
	IndexWidth     int      `json:"index_width"`
	Vertices       int      `json:"vertices"`
	Indices        int      `json:"indices"`
	Protected      int      `json:"protected"`
	PayloadSize    int      `json:"payload_size"`
	LinkedFilename string   `json:"linked_filename,omitempty"`
}

func cmdHeaders(args []string) {
	fs := flag.NewFlagSet("headers", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print headers as JSON")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: streamtool headers [-json] <file.msd>")
		os.Exit(1)
	}

	doc := openDocument(fs.Arg(0))
	defer doc.Close()

	fetcher, _ := newFetcher(doc)
	headers, err := doc.Headers(context.Background(), fetcher)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving headers: %v\n", err)
		os.Exit(1)
	}

	var out []headerJSON
	for _, h := range headers {
		hj := headerJSON{
			Name:        h.Entry.Name,
			Metadata:    h.Entry.Metadata.String(),
			IndexWidth:  h.Header.IndexWidth,
			Vertices:    h.Header.VertexCount,
			Indices:     h.Header.IndexCount,
			Protected:   h.Header.ProtectedCount,
			PayloadSize: h.Header.PayloadSize(),
		}
		for _, a := range h.Header.Layout.Attributes {
			hj.Attributes = append(hj.Attributes, fmt.Sprintf("%s:%d", a.Name, a.Size))
		}
		if h.Linked != nil {
			hj.LinkedFilename = h.Linked.Filename
		}
		out = append(out, hj)
	}

	if *asJSON {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding headers: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	for _, h := range out {
		fmt.Printf("%s\n", h.Name)
		fmt.Printf("  metadata:   %s\n", h.Metadata)
		fmt.Printf("  layout:     %s\n", strings.Join(h.Attributes, ", "))
		fmt.Printf("  vertices:   %d\n", h.Vertices)
		fmt.Printf("  indices:    %d (%d bytes each)\n", h.Indices, h.IndexWidth)
		fmt.Printf("  protected:  %d\n", h.Protected)
		fmt.Printf("  payload:    %d bytes\n", h.PayloadSize)
		if h.LinkedFilename != "" {
			fmt.Printf("  linked:     %s\n", h.LinkedFilename)
		}
	}
}

func cmdExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: streamtool extract <file.msd> <name> [output_dir]")
		os.Exit(1)
	}

	pattern := fs.Arg(1)
	outputDir := "."
	if fs.NArg() > 2 {
		outputDir = fs.Arg(2)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	doc := openDocument(fs.Arg(0))
	defer doc.Close()

	var names []string
	for _, name := range doc.List() {
		e, _ := doc.Entry(name)
		if e.Metadata.AssetType() == streaming.GeometryAsset && (name == pattern || matches(pattern, name)) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		fmt.Fprintf(os.Stderr, "No geometry matches: %s\n", pattern)
		os.Exit(1)
	}

	extracted := extractAll(doc, names, outputDir)
	fmt.Fprintf(os.Stderr, "\nExtracted %d of %d geometries\n", extracted, len(names))
}

// extractAll streams the selected geometries concurrently, one parser per entry.
func extractAll(doc *streaming.Document, names []string, outputDir string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher, cache := newFetcher(doc)
	agg := streaming.NewAggregator(names, streaming.ProgressHandlers{
		OnProgress: func(total float64) {
			fmt.Fprintf(os.Stderr, "\rprogress %5.1f%%", total*100)
		},
	})
	runErr := make(chan error, 1)
	go func() { runErr <- agg.Run(ctx) }()

	var (
		mu        sync.Mutex
		extracted int
		wg        sync.WaitGroup
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string, r *streaming.Reporter) {
			defer wg.Done()
			defer r.Complete(ctx)

			_ = r.Active(ctx)
			defer r.Inactive(ctx)

			g, err := doc.ReadGeometry(ctx, name, fetcher)
			if err != nil {
				fmt.Fprintf(os.Stderr, "\nError reading %s: %v\n", name, err)
				return
			}
			_ = r.Progress(ctx, 0.5)

			outputPath := confinedPath(outputDir, name+".obj")
			if err := writeOBJ(outputPath, g); err != nil {
				fmt.Fprintf(os.Stderr, "\nError writing %s: %v\n", outputPath, err)
				return
			}
			_ = r.Progress(ctx, 1)

			mu.Lock()
			extracted++
			mu.Unlock()
		}(name, agg.Reporter(name))
	}
	wg.Wait()

	if err := <-runErr; err != nil {
		fmt.Fprintf(os.Stderr, "\nProgress aggregation stopped: %v\n", err)
	}
	hits, misses := cache.Stats()
	fmt.Fprintf(os.Stderr, "\nlinked cache: %d hits, %d misses", hits, misses)
	return extracted
}

// confinedPath joins a document entry name below dir; names cannot climb out of it.
func confinedPath(dir, name string) string {
	return filepath.Join(dir, filepath.Clean("/"+name))
}

func writeOBJ(path string, g *geometry.Geometry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := formats.WriteOBJ(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
