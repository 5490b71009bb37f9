package nrrd

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"

	"mtypedensities/pkg/voxel"
)

// WriteScalar writes a field as a gzip encoded NRRD volume. Samples are
// stored as float32 unless float64 is requested.
func WriteScalar(path string, f *voxel.Field, float64Samples bool) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating volume: %w", err)
	}
	defer file.Close()

	bw := bufio.NewWriter(file)
	sampleType := "float"
	if float64Samples {
		sampleType = "double"
	}
	fmt.Fprintln(bw, "NRRD0004")
	fmt.Fprintf(bw, "type: %s\n", sampleType)
	fmt.Fprintln(bw, "dimension: 3")
	fmt.Fprintf(bw, "sizes: %d %d %d\n", f.Grid.Shape[0], f.Grid.Shape[1], f.Grid.Shape[2])
	fmt.Fprintln(bw, "encoding: gzip")
	fmt.Fprintln(bw, "endian: little")
	fmt.Fprintln(bw, "space dimension: 3")
	fmt.Fprintf(bw, "space directions: %s %s %s\n",
		axisDirection(0, f.Grid.VoxelSize[0]),
		axisDirection(1, f.Grid.VoxelSize[1]),
		axisDirection(2, f.Grid.VoxelSize[2]))
	fmt.Fprintf(bw, "space origin: (%s,%s,%s)\n",
		formatFloat(f.Grid.Origin[0]), formatFloat(f.Grid.Origin[1]), formatFloat(f.Grid.Origin[2]))
	fmt.Fprintln(bw)

	zw := gzip.NewWriter(bw)
	if float64Samples {
		buf := make([]byte, 8)
		for _, v := range f.Data {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
			if _, err := zw.Write(buf); err != nil {
				return fmt.Errorf("error writing volume payload: %w", err)
			}
		}
	} else {
		buf := make([]byte, 4)
		for _, v := range f.Data {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
			if _, err := zw.Write(buf); err != nil {
				return fmt.Errorf("error writing volume payload: %w", err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("error finishing volume payload: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("error writing volume: %w", err)
	}
	return file.Close()
}

// axisDirection renders the space direction vector of one axis of an axis
// aligned grid, e.g. (0,25,0) for axis 1 with voxel size 25.
func axisDirection(axis int, size float64) string {
	var c [3]string
	for i := range c {
		c[i] = "0"
	}
	c[axis] = formatFloat(size)
	return "(" + c[0] + "," + c[1] + "," + c[2] + ")"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
