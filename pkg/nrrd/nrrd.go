// Package nrrd reads and writes NRRD volumes, the exchange format for atlas
// density, annotation and direction vector files.
//
// The reader covers the subset produced by common atlas tooling: dimension 3
// scalar volumes and dimension 4 vector volumes with a 3 component axis, raw
// or gzip encoding, and axis aligned space directions. The writer emits gzip
// encoded volumes with float samples.
package nrrd

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"mtypedensities/pkg/voxel"
)

type sampleType int

const (
	typeUint8 sampleType = iota
	typeInt8
	typeUint16
	typeInt16
	typeUint32
	typeInt32
	typeFloat32
	typeFloat64
)

var sampleBytes = map[sampleType]int{
	typeUint8:   1,
	typeInt8:    1,
	typeUint16:  2,
	typeInt16:   2,
	typeUint32:  4,
	typeInt32:   4,
	typeFloat32: 4,
	typeFloat64: 8,
}

// header holds the decoded NRRD fields needed to interpret the payload.
type header struct {
	dim       int
	sizes     []int
	stype     sampleType
	haveType  bool
	encoding  string
	bigEndian bool
	dirs      []*[3]float64 // one entry per axis, nil for "none"
	origin    [3]float64
	kinds     []string
}

// ReadScalar reads a dimension 3 volume of any supported sample type into a
// float64 field.
func ReadScalar(path string) (*voxel.Field, error) {
	h, data, err := readVolume(path)
	if err != nil {
		return nil, err
	}
	if h.dim != 3 {
		return nil, fmt.Errorf("%s: expected a 3 dimensional scalar volume, got dimension %d", path, h.dim)
	}
	grid, err := h.spatialGrid([]int{0, 1, 2})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := voxel.NewField(grid)
	for i := range out.Data {
		out.Data[i] = h.valueAt(data, i)
	}
	return out, nil
}

// ReadLabels reads a dimension 3 volume of an integer sample type into a
// region identifier field.
func ReadLabels(path string) (*voxel.LabelField, error) {
	h, data, err := readVolume(path)
	if err != nil {
		return nil, err
	}
	if h.dim != 3 {
		return nil, fmt.Errorf("%s: expected a 3 dimensional annotation volume, got dimension %d", path, h.dim)
	}
	if h.stype == typeFloat32 || h.stype == typeFloat64 {
		return nil, fmt.Errorf("%s: annotation volumes must use an integer sample type", path)
	}
	grid, err := h.spatialGrid([]int{0, 1, 2})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := &voxel.LabelField{Grid: grid, IDs: make([]uint32, grid.Len())}
	for i := range out.IDs {
		v := h.valueAt(data, i)
		if v < 0 {
			return nil, fmt.Errorf("%s: negative region identifier %g", path, v)
		}
		out.IDs[i] = uint32(v)
	}
	return out, nil
}

// ReadVectors reads a dimension 4 volume with a 3 component axis into a
// vector field. The component axis may come first or last; it is located via
// the kinds field, the "none" space direction, or the axis sizes.
func ReadVectors(path string) (*voxel.VectorField, error) {
	h, data, err := readVolume(path)
	if err != nil {
		return nil, err
	}
	if h.dim != 4 {
		return nil, fmt.Errorf("%s: expected a 4 dimensional vector volume, got dimension %d", path, h.dim)
	}
	if h.stype != typeFloat32 && h.stype != typeFloat64 {
		return nil, fmt.Errorf("%s: vector volumes must use a float sample type", path)
	}
	axis, err := h.componentAxis()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var spatial []int
	for ax := 0; ax < 4; ax++ {
		if ax != axis {
			spatial = append(spatial, ax)
		}
	}
	grid, err := h.spatialGrid(spatial)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	n := grid.Len()
	out := &voxel.VectorField{Grid: grid, Vectors: make([]float64, 3*n)}
	if axis == 0 {
		// Component varies fastest, matching the in-memory layout.
		for i := 0; i < 3*n; i++ {
			out.Vectors[i] = h.valueAt(data, i)
		}
	} else {
		// Component varies slowest: one full volume per component.
		for c := 0; c < 3; c++ {
			for i := 0; i < n; i++ {
				out.Vectors[3*i+c] = h.valueAt(data, c*n+i)
			}
		}
	}
	return out, nil
}

// readVolume opens a file, parses its header and returns the decoded payload
// with exactly one sample per header slot.
func readVolume(path string) (*header, []byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening volume: %w", err)
	}
	defer file.Close()

	br := bufio.NewReader(file)
	h, err := parseHeader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	need := h.count() * sampleBytes[h.stype]
	var data []byte
	switch h.encoding {
	case "raw":
		data = make([]byte, need)
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, nil, fmt.Errorf("%s: truncated raw payload: %w", path, err)
		}
	case "gzip":
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: bad gzip payload: %w", path, err)
		}
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: bad gzip payload: %w", path, err)
		}
		if len(data) < need {
			return nil, nil, fmt.Errorf("%s: truncated gzip payload: got %d bytes, need %d", path, len(data), need)
		}
		data = data[:need]
	default:
		return nil, nil, fmt.Errorf("%s: unsupported encoding %q", path, h.encoding)
	}
	return h, data, nil
}

var magicRe = regexp.MustCompile(`^NRRD000[1-5]$`)

func parseHeader(br *bufio.Reader) (*header, error) {
	magic, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("error reading magic: %w", err)
	}
	if !magicRe.MatchString(strings.TrimRight(magic, "\r\n")) {
		return nil, fmt.Errorf("not an NRRD file")
	}

	h := &header{encoding: "raw"}
	for {
		line, err := br.ReadString('\n')
		if err == io.EOF {
			return nil, fmt.Errorf("unexpected end of header")
		}
		if err != nil {
			return nil, fmt.Errorf("error reading header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, ":=") {
			// Key-value pairs carry annotations, not geometry.
			continue
		}
		colon := strings.Index(line, ":")
		if colon < 0 {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		if err := h.setField(key, val); err != nil {
			return nil, err
		}
	}

	if !h.haveType {
		return nil, fmt.Errorf("header is missing the type field")
	}
	if h.dim == 0 {
		return nil, fmt.Errorf("header is missing the dimension field")
	}
	if len(h.sizes) != h.dim {
		return nil, fmt.Errorf("sizes list %v does not match dimension %d", h.sizes, h.dim)
	}
	for _, s := range h.sizes {
		if s <= 0 {
			return nil, fmt.Errorf("non-positive axis size in %v", h.sizes)
		}
	}
	if h.dirs != nil && len(h.dirs) != h.dim {
		return nil, fmt.Errorf("space directions list does not match dimension %d", h.dim)
	}
	return h, nil
}

func (h *header) setField(key, val string) error {
	switch key {
	case "type":
		st, ok := parseType(val)
		if !ok {
			return fmt.Errorf("unsupported sample type %q", val)
		}
		h.stype = st
		h.haveType = true
	case "dimension":
		d, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("bad dimension %q", val)
		}
		h.dim = d
	case "sizes":
		for _, f := range strings.Fields(val) {
			s, err := strconv.Atoi(f)
			if err != nil {
				return fmt.Errorf("bad sizes entry %q", f)
			}
			h.sizes = append(h.sizes, s)
		}
	case "encoding":
		enc := strings.ToLower(val)
		if enc == "gz" {
			enc = "gzip"
		}
		h.encoding = enc
	case "endian":
		switch strings.ToLower(val) {
		case "little":
			h.bigEndian = false
		case "big":
			h.bigEndian = true
		default:
			return fmt.Errorf("unknown endianness %q", val)
		}
	case "space directions":
		dirs, err := parseDirections(val)
		if err != nil {
			return err
		}
		h.dirs = dirs
	case "space origin":
		v, err := parseTriple(val)
		if err != nil {
			return err
		}
		h.origin = v
	case "kinds":
		for _, f := range strings.Fields(val) {
			h.kinds = append(h.kinds, strings.ToLower(f))
		}
	}
	// Remaining fields (space, content, units, ...) do not affect decoding.
	return nil
}

func parseType(val string) (sampleType, bool) {
	switch strings.ToLower(val) {
	case "uchar", "unsigned char", "uint8", "uint8_t":
		return typeUint8, true
	case "signed char", "int8", "int8_t":
		return typeInt8, true
	case "ushort", "unsigned short", "unsigned short int", "uint16", "uint16_t":
		return typeUint16, true
	case "short", "short int", "signed short", "int16", "int16_t":
		return typeInt16, true
	case "uint", "unsigned int", "uint32", "uint32_t":
		return typeUint32, true
	case "int", "signed int", "int32", "int32_t":
		return typeInt32, true
	case "float", "float32":
		return typeFloat32, true
	case "double", "float64":
		return typeFloat64, true
	}
	return 0, false
}

var directionRe = regexp.MustCompile(`none|\(([^)]*)\)`)

func parseDirections(val string) ([]*[3]float64, error) {
	var out []*[3]float64
	for _, m := range directionRe.FindAllStringSubmatch(val, -1) {
		if m[0] == "none" {
			out = append(out, nil)
			continue
		}
		v, err := parseTriple(m[0])
		if err != nil {
			return nil, err
		}
		d := v
		out = append(out, &d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("bad space directions %q", val)
	}
	return out, nil
}

func parseTriple(val string) ([3]float64, error) {
	s := strings.Trim(strings.TrimSpace(val), "()")
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return [3]float64{}, fmt.Errorf("bad vector %q", val)
	}
	var out [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return [3]float64{}, fmt.Errorf("bad vector component %q", p)
		}
		out[i] = f
	}
	return out, nil
}

// componentAxis locates the 3 component axis of a dimension 4 volume.
func (h *header) componentAxis() (int, error) {
	if h.kinds != nil && len(h.kinds) == 4 {
		for ax, k := range h.kinds {
			if k != "domain" && k != "space" && h.sizes[ax] == 3 {
				return ax, nil
			}
		}
	}
	if h.dirs != nil {
		for ax, d := range h.dirs {
			if d == nil && h.sizes[ax] == 3 {
				return ax, nil
			}
		}
	}
	if h.sizes[0] == 3 {
		return 0, nil
	}
	if h.sizes[3] == 3 {
		return 3, nil
	}
	return 0, fmt.Errorf("no 3 component axis in sizes %v", h.sizes)
}

// spatialGrid builds the voxel grid from the given spatial axes, in order.
// Space directions, when present, must be axis aligned.
func (h *header) spatialGrid(axes []int) (voxel.Grid, error) {
	var g voxel.Grid
	for k, ax := range axes {
		g.Shape[k] = h.sizes[ax]
		g.VoxelSize[k] = 1
	}
	g.Origin = h.origin
	if h.dirs == nil {
		return g, nil
	}
	for k, ax := range axes {
		d := h.dirs[ax]
		if d == nil {
			return g, fmt.Errorf("missing space direction for axis %d", ax)
		}
		for c := 0; c < 3; c++ {
			if c != k && d[c] != 0 {
				return g, fmt.Errorf("only axis aligned space directions are supported, got %v", *d)
			}
		}
		g.VoxelSize[k] = d[k]
	}
	return g, nil
}

func (h *header) count() int {
	n := 1
	for _, s := range h.sizes {
		n *= s
	}
	return n
}

func (h *header) order() binary.ByteOrder {
	if h.bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// valueAt decodes sample i of the payload as float64.
func (h *header) valueAt(data []byte, i int) float64 {
	switch h.stype {
	case typeUint8:
		return float64(data[i])
	case typeInt8:
		return float64(int8(data[i]))
	case typeUint16:
		return float64(h.order().Uint16(data[2*i:]))
	case typeInt16:
		return float64(int16(h.order().Uint16(data[2*i:])))
	case typeUint32:
		return float64(h.order().Uint32(data[4*i:]))
	case typeInt32:
		return float64(int32(h.order().Uint32(data[4*i:])))
	case typeFloat32:
		return float64(math.Float32frombits(h.order().Uint32(data[4*i:])))
	default:
		return math.Float64frombits(h.order().Uint64(data[8*i:]))
	}
}
