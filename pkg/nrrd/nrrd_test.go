package nrrd

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mtypedensities/pkg/voxel"
)

// writeRaw assembles an NRRD file from a literal header and payload bytes.
func writeRaw(t *testing.T, name, header string, payload []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, append([]byte(header), payload...), 0644))
	return path
}

func f32le(vals ...float64) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(float32(v)))
	}
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	grid := voxel.Grid{
		Shape:     [3]int{3, 2, 2},
		VoxelSize: [3]float64{25, 25, 25},
		Origin:    [3]float64{-100, 0, 12.5},
	}
	f := voxel.NewField(grid)
	for i := range f.Data {
		// Multiples of 0.25 survive the float32 narrowing exactly.
		f.Data[i] = float64(i) * 0.25
	}

	path := filepath.Join(t.TempDir(), "densities.nrrd")
	require.NoError(t, WriteScalar(path, f, false))

	got, err := ReadScalar(path)
	require.NoError(t, err)
	require.True(t, got.Grid.Equal(grid), "grid changed across the roundtrip")
	require.Equal(t, f.Data, got.Data)
}

func TestWriteReadRoundTripFloat64(t *testing.T) {
	grid := voxel.Grid{Shape: [3]int{2, 2, 1}, VoxelSize: [3]float64{10, 10, 10}}
	f := voxel.NewField(grid)
	f.Data = []float64{0, 1.0 / 3.0, math.Pi, 42424.42}

	path := filepath.Join(t.TempDir(), "densities.nrrd")
	require.NoError(t, WriteScalar(path, f, true))

	got, err := ReadScalar(path)
	require.NoError(t, err)
	require.Equal(t, f.Data, got.Data)
}

func TestReadScalarRawUint16(t *testing.T) {
	header := "NRRD0004\n" +
		"# integer scalar volume\n" +
		"type: unsigned short\n" +
		"dimension: 3\n" +
		"sizes: 2 2 2\n" +
		"encoding: raw\n" +
		"endian: little\n" +
		"\n"
	payload := make([]byte, 16)
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint16(payload[2*i:], uint16(i*100))
	}
	path := writeRaw(t, "scalar.nrrd", header, payload)

	f, err := ReadScalar(path)
	require.NoError(t, err)
	require.Equal(t, [3]int{2, 2, 2}, f.Grid.Shape)
	// Without space directions the voxel size defaults to 1.
	require.Equal(t, [3]float64{1, 1, 1}, f.Grid.VoxelSize)
	require.Equal(t, []float64{0, 100, 200, 300, 400, 500, 600, 700}, f.Data)
}

func TestReadLabels(t *testing.T) {
	header := "NRRD0004\n" +
		"type: uint32\n" +
		"dimension: 3\n" +
		"sizes: 2 1 1\n" +
		"encoding: raw\n" +
		"endian: little\n" +
		"space directions: (25,0,0) (0,25,0) (0,0,25)\n" +
		"space origin: (0,0,0)\n" +
		"\n"
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload, 997)
	binary.LittleEndian.PutUint32(payload[4:], 315)
	path := writeRaw(t, "annotation.nrrd", header, payload)

	l, err := ReadLabels(path)
	require.NoError(t, err)
	require.Equal(t, []uint32{997, 315}, l.IDs)
	require.Equal(t, [3]float64{25, 25, 25}, l.Grid.VoxelSize)
}

func TestReadLabelsRejectsBadTypes(t *testing.T) {
	header := "NRRD0004\n" +
		"type: float\n" +
		"dimension: 3\n" +
		"sizes: 1 1 1\n" +
		"encoding: raw\n" +
		"endian: little\n" +
		"\n"
	path := writeRaw(t, "annotation.nrrd", header, f32le(1))
	_, err := ReadLabels(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "integer sample type")

	header = "NRRD0004\n" +
		"type: int32\n" +
		"dimension: 3\n" +
		"sizes: 1 1 1\n" +
		"encoding: raw\n" +
		"endian: little\n" +
		"\n"
	neg := make([]byte, 4)
	binary.LittleEndian.PutUint32(neg, uint32(0xFFFFFFFF)) // -1
	path = writeRaw(t, "negative.nrrd", header, neg)
	_, err = ReadLabels(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "negative region identifier")
}

func TestReadVectorsComponentFirst(t *testing.T) {
	header := "NRRD0004\n" +
		"type: float\n" +
		"dimension: 4\n" +
		"sizes: 3 2 1 1\n" +
		"kinds: vector domain domain domain\n" +
		"encoding: raw\n" +
		"endian: little\n" +
		"space directions: none (25,0,0) (0,25,0) (0,0,25)\n" +
		"space origin: (5,6,7)\n" +
		"\n"
	// Voxel 0 points along +z, voxel 1 along +x.
	payload := f32le(0, 0, 1, 1, 0, 0)
	path := writeRaw(t, "direction_vectors.nrrd", header, payload)

	v, err := ReadVectors(path)
	require.NoError(t, err)
	require.Equal(t, [3]int{2, 1, 1}, v.Grid.Shape)
	require.Equal(t, [3]float64{5, 6, 7}, v.Grid.Origin)

	vx, vy, vz := v.At(0)
	require.Equal(t, [3]float64{0, 0, 1}, [3]float64{vx, vy, vz})
	vx, vy, vz = v.At(1)
	require.Equal(t, [3]float64{1, 0, 0}, [3]float64{vx, vy, vz})
}

func TestReadVectorsComponentLast(t *testing.T) {
	header := "NRRD0004\n" +
		"type: float\n" +
		"dimension: 4\n" +
		"sizes: 2 1 1 3\n" +
		"encoding: raw\n" +
		"endian: little\n" +
		"space directions: (25,0,0) (0,25,0) (0,0,25) none\n" +
		"\n"
	// One full sub-volume per component: x components, then y, then z.
	payload := f32le(1, 0, 0, 2, 0, 3)
	path := writeRaw(t, "direction_vectors.nrrd", header, payload)

	v, err := ReadVectors(path)
	require.NoError(t, err)
	require.Equal(t, [3]int{2, 1, 1}, v.Grid.Shape)

	vx, vy, vz := v.At(0)
	require.Equal(t, [3]float64{1, 0, 0}, [3]float64{vx, vy, vz})
	vx, vy, vz = v.At(1)
	require.Equal(t, [3]float64{0, 2, 3}, [3]float64{vx, vy, vz})
}

func TestReadRejectsMalformedHeaders(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		payload []byte
		errText string
	}{
		{
			name:    "bad magic",
			header:  "NIFTI001\ntype: float\ndimension: 3\nsizes: 1 1 1\nencoding: raw\n\n",
			payload: f32le(1),
			errText: "not an NRRD file",
		},
		{
			name:    "sizes mismatch",
			header:  "NRRD0004\ntype: float\ndimension: 3\nsizes: 1 1\nencoding: raw\n\n",
			payload: f32le(1),
			errText: "does not match dimension",
		},
		{
			name:    "missing type",
			header:  "NRRD0004\ndimension: 3\nsizes: 1 1 1\nencoding: raw\n\n",
			payload: f32le(1),
			errText: "missing the type field",
		},
		{
			name:    "off diagonal directions",
			header:  "NRRD0004\ntype: float\ndimension: 3\nsizes: 1 1 1\nencoding: raw\nspace directions: (25,1,0) (0,25,0) (0,0,25)\n\n",
			payload: f32le(1),
			errText: "axis aligned",
		},
		{
			name:    "unsupported encoding",
			header:  "NRRD0004\ntype: float\ndimension: 3\nsizes: 1 1 1\nencoding: bzip2\n\n",
			payload: f32le(1),
			errText: "unsupported encoding",
		},
		{
			name:    "truncated payload",
			header:  "NRRD0004\ntype: float\ndimension: 3\nsizes: 2 2 2\nencoding: raw\n\n",
			payload: f32le(1, 2),
			errText: "truncated",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeRaw(t, "bad.nrrd", tc.header, tc.payload)
			_, err := ReadScalar(path)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errText)
		})
	}
}

func TestReadScalarRejectsVectorVolume(t *testing.T) {
	header := "NRRD0004\ntype: float\ndimension: 4\nsizes: 3 1 1 1\nencoding: raw\n\n"
	path := writeRaw(t, "vec.nrrd", header, f32le(1, 2, 3))
	_, err := ReadScalar(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "dimension 4")
}
