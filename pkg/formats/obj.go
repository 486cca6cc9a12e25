package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/Faultbox/meshstream/pkg/geometry"
	"github.com/Faultbox/meshstream/pkg/math"
)

// OBJ format errors.
var (
	ErrEmptyOBJ           = errors.New("OBJ contains no faces")
	ErrInvalidOBJVertex   = errors.New("invalid OBJ vertex")
	ErrInvalidOBJFace     = errors.New("invalid OBJ face")
	ErrOBJIndexOutOfRange = errors.New("OBJ index out of range")
)

// OBJGroup is a run of faces sharing one object name and material.
type OBJGroup struct {
	Name     string
	Material string
	Geometry *geometry.Geometry
}

// OBJ is a parsed Wavefront OBJ file.
type OBJ struct {
	MaterialLibs []string
	Groups       []OBJGroup
}

// objCorner identifies a face corner by its position, uv and normal references.
// Corners without a normal carry the face normal instead.
type objCorner struct {
	v, vt, vn int
	flat      math.Vec3
}

type objBuilder struct {
	group   OBJGroup
	corners map[objCorner]uint32
}

// ParseOBJ parses OBJ text. Polygons are fan-triangulated; every group gets a
// position/normal/uv geometry with its own welded vertices.
// UTF-8 and UTF-16 input with a byte order mark is accepted.
func ParseOBJ(data []byte) (*OBJ, error) {
	data, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return nil, fmt.Errorf("decoding OBJ text: %w", err)
	}

	var (
		positions []math.Vec3
		uvs       [][2]float32
		normals   []math.Vec3
		obj       = &OBJ{}
		name      = "default"
		material  string
		current   *objBuilder
		builders  []*objBuilder
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "v":
			p, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("%w at line %d: %v", ErrInvalidOBJVertex, line, err)
			}
			positions = append(positions, math.Vec3{X: p[0], Y: p[1], Z: p[2]})

		case "vt":
			p, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("%w at line %d: %v", ErrInvalidOBJVertex, line, err)
			}
			uvs = append(uvs, [2]float32{p[0], p[1]})

		case "vn":
			p, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("%w at line %d: %v", ErrInvalidOBJVertex, line, err)
			}
			normals = append(normals, math.Vec3{X: p[0], Y: p[1], Z: p[2]})

		case "o", "g":
			if len(fields) > 1 {
				name = strings.Join(fields[1:], " ")
			}
			current = nil

		case "usemtl":
			if len(fields) > 1 {
				material = fields[1]
			}
			current = nil

		case "mtllib":
			obj.MaterialLibs = append(obj.MaterialLibs, fields[1:]...)

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w at line %d: %d corners", ErrInvalidOBJFace, line, len(fields)-1)
			}
			corners := make([]objCorner, len(fields)-1)
			for i, f := range fields[1:] {
				c, err := parseCorner(f, len(positions), len(uvs), len(normals))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				corners[i] = c
			}

			if current == nil {
				current = &objBuilder{
					group: OBJGroup{
						Name:     name,
						Material: material,
						Geometry: &geometry.Geometry{Name: name, Layout: geometry.PositionNormalUV()},
					},
					corners: make(map[objCorner]uint32),
				}
				builders = append(builders, current)
			}

			flat := positions[corners[1].v].Sub(positions[corners[0].v]).
				Cross(positions[corners[2].v].Sub(positions[corners[0].v])).Normalize()
			for i := 1; i+1 < len(corners); i++ {
				for _, c := range [...]objCorner{corners[0], corners[i], corners[i+1]} {
					current.add(c, flat, positions, uvs, normals)
				}
			}

		default:
			// s, l, p and the other statements do not affect triangle geometry.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading OBJ: %w", err)
	}

	for _, b := range builders {
		obj.Groups = append(obj.Groups, b.group)
	}
	if len(obj.Groups) == 0 {
		return nil, ErrEmptyOBJ
	}
	return obj, nil
}

func (b *objBuilder) add(c objCorner, flat math.Vec3, positions []math.Vec3, uvs [][2]float32, normals []math.Vec3) {
	if c.vn < 0 {
		c.flat = flat
	}
	g := b.group.Geometry
	if idx, ok := b.corners[c]; ok {
		g.Indices = append(g.Indices, idx)
		return
	}

	idx := uint32(g.NumVertices())
	p := positions[c.v]
	n := c.flat
	if c.vn >= 0 {
		n = normals[c.vn]
	}
	var uv [2]float32
	if c.vt >= 0 {
		uv = uvs[c.vt]
	}
	g.Vertices = append(g.Vertices, p.X, p.Y, p.Z, n.X, n.Y, n.Z, uv[0], uv[1])
	g.Indices = append(g.Indices, idx)
	b.corners[c] = idx
}

// parseCorner parses v, v/vt, v//vn or v/vt/vn into zero-based indices, -1 when absent.
func parseCorner(s string, nv, nvt, nvn int) (objCorner, error) {
	parts := strings.Split(s, "/")
	if len(parts) > 3 || parts[0] == "" {
		return objCorner{}, fmt.Errorf("%w: %q", ErrInvalidOBJFace, s)
	}

	c := objCorner{vt: -1, vn: -1}
	var err error
	if c.v, err = resolveIndex(parts[0], nv); err != nil {
		return c, err
	}
	if len(parts) > 1 && parts[1] != "" {
		if c.vt, err = resolveIndex(parts[1], nvt); err != nil {
			return c, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if c.vn, err = resolveIndex(parts[2], nvn); err != nil {
			return c, err
		}
	}
	return c, nil
}

// resolveIndex converts a one-based or negative relative OBJ index.
func resolveIndex(s string, count int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOBJFace, s)
	}
	switch {
	case i > 0 && i <= count:
		return i - 1, nil
	case i < 0 && -i <= count:
		return count + i, nil
	default:
		return 0, fmt.Errorf("%w: %d of %d", ErrOBJIndexOutOfRange, i, count)
	}
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := range out {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

// ParseOBJFile parses an OBJ file from disk.
func ParseOBJFile(path string) (*OBJ, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading OBJ file: %w", err)
	}
	return ParseOBJ(data)
}

// TotalTriangles returns the number of triangles across all groups.
func (o *OBJ) TotalTriangles() int {
	total := 0
	for _, g := range o.Groups {
		total += g.Geometry.NumTriangles()
	}
	return total
}

// WriteOBJ writes g as a single OBJ object. Normals and uvs are written when the layout has them.
func WriteOBJ(w io.Writer, g *geometry.Geometry) error {
	pos, ok := g.Layout.Attribute(geometry.AttrPosition)
	if !ok {
		return fmt.Errorf("%w: geometry %q has no position", ErrInvalidOBJVertex, g.Name)
	}
	normal, hasNormal := g.Layout.Attribute(geometry.AttrNormal)
	uv, hasUV := g.Layout.Attribute(geometry.AttrUV)

	bw := bufio.NewWriter(w)
	if g.Name != "" {
		fmt.Fprintf(bw, "o %s\n", g.Name)
	}
	n := uint32(g.NumVertices())
	for i := uint32(0); i < n; i++ {
		v := g.Vertex(i)
		fmt.Fprintf(bw, "v %g %g %g\n", v[pos.Offset], v[pos.Offset+1], v[pos.Offset+2])
	}
	if hasUV {
		for i := uint32(0); i < n; i++ {
			v := g.Vertex(i)
			fmt.Fprintf(bw, "vt %g %g\n", v[uv.Offset], v[uv.Offset+1])
		}
	}
	if hasNormal {
		for i := uint32(0); i < n; i++ {
			v := g.Vertex(i)
			fmt.Fprintf(bw, "vn %g %g %g\n", v[normal.Offset], v[normal.Offset+1], v[normal.Offset+2])
		}
	}

	corner := func(i uint32) string {
		k := i + 1
		switch {
		case hasUV && hasNormal:
			return fmt.Sprintf("%d/%d/%d", k, k, k)
		case hasUV:
			return fmt.Sprintf("%d/%d", k, k)
		case hasNormal:
			return fmt.Sprintf("%d//%d", k, k)
		default:
			return strconv.FormatUint(uint64(k), 10)
		}
	}
	for t := 0; t+2 < len(g.Indices); t += 3 {
		fmt.Fprintf(bw, "f %s %s %s\n", corner(g.Indices[t]), corner(g.Indices[t+1]), corner(g.Indices[t+2]))
	}
	return bw.Flush()
}
