package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mtypedensities"
	"mtypedensities/pkg/densities"
)

// readTable reads a whitespace separated table whose first non-blank line
// must match the expected header. It returns the data rows.
func readTable(path string, header []string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading table file: %w", err)
	}

	base := filepath.Base(path)
	var rows [][]string
	sawHeader := false
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if !sawHeader {
			if !equalFields(fields, header) {
				return nil, mtypedensities.Validationf(
					"%s has header %v, expected %v", base, fields, header)
			}
			sawHeader = true
			continue
		}
		if len(fields) != len(header) {
			return nil, mtypedensities.Validationf(
				"%s row %v has %d fields, expected %d", base, fields, len(fields), len(header))
		}
		rows = append(rows, fields)
	}
	if !sawHeader {
		return nil, mtypedensities.Validationf("%s is empty, expected header %v", base, header)
	}
	return rows, nil
}

func equalFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// LoadSliceCounts reads the layer slice count table, header "layer
// slice_count".
func LoadSliceCounts(path string) (densities.SliceCounts, error) {
	rows, err := readTable(path, []string{"layer", "slice_count"})
	if err != nil {
		return nil, err
	}

	counts := make(densities.SliceCounts, len(rows))
	for _, row := range rows {
		layer := row[0]
		if _, dup := counts[layer]; dup {
			return nil, mtypedensities.Validationf(
				"duplicate layer %q in %s", layer, filepath.Base(path))
		}
		k, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, fmt.Errorf("error parsing slice count %q of layer %q: %w", row[1], layer, err)
		}
		counts[layer] = k
	}
	return counts, nil
}

// LoadProfiles reads the mtype to profile mapping, the layer slice counts
// and the referenced profile files. Several mtypes may share one profile.
func LoadProfiles(mappingPath, layersPath, profilesDir string) ([]densities.ProfileRow, densities.SliceCounts, error) {
	counts, err := LoadSliceCounts(layersPath)
	if err != nil {
		return nil, nil, err
	}

	mapping, err := readTable(mappingPath, []string{"mtype", "sclass", "profile_name"})
	if err != nil {
		return nil, nil, err
	}

	type profileValue struct {
		layer string
		slice int
		value float64
	}
	cache := make(map[string][]profileValue)

	var out []densities.ProfileRow
	seen := make(map[string]bool, len(mapping))
	for _, row := range mapping {
		mtype, sclass, profile := row[0], row[1], row[2]
		if seen[mtype] {
			return nil, nil, mtypedensities.Validationf(
				"duplicate mtype %q in %s", mtype, filepath.Base(mappingPath))
		}
		seen[mtype] = true

		values, ok := cache[profile]
		if !ok {
			path := filepath.Join(profilesDir, profile+".tsv")
			rows, err := readTable(path, []string{"layer", "slice", "value"})
			if err != nil {
				return nil, nil, err
			}
			for _, r := range rows {
				slice, err := strconv.Atoi(r[1])
				if err != nil {
					return nil, nil, fmt.Errorf(
						"error parsing slice index %q in profile %q: %w", r[1], profile, err)
				}
				value, err := strconv.ParseFloat(r[2], 64)
				if err != nil {
					return nil, nil, fmt.Errorf(
						"error parsing value %q in profile %q: %w", r[2], profile, err)
				}
				values = append(values, profileValue{layer: r[0], slice: slice, value: value})
			}
			cache[profile] = values
		}

		for _, v := range values {
			out = append(out, densities.ProfileRow{
				MType: mtype,
				Class: densities.SynapseClass(sclass),
				Layer: v.layer,
				Slice: v.slice,
				Value: v.value,
			})
		}
	}
	return out, counts, nil
}

// LoadTaxonomy reads the whitespace separated taxonomy table. The header
// columns are returned as found so the exact-columns check stays with the
// core.
func LoadTaxonomy(path string) ([]string, []densities.TaxonomyRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading taxonomy file: %w", err)
	}

	var columns []string
	var colIdx map[string]int
	var rows []densities.TaxonomyRow
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if columns == nil {
			columns = fields
			colIdx = make(map[string]int, len(fields))
			for i, c := range fields {
				colIdx[c] = i
			}
			continue
		}
		if len(fields) != len(columns) {
			return nil, nil, mtypedensities.Validationf(
				"taxonomy row %v has %d fields, expected %d", fields, len(fields), len(columns))
		}
		pick := func(name string) string {
			if i, ok := colIdx[name]; ok {
				return fields[i]
			}
			return ""
		}
		rows = append(rows, densities.TaxonomyRow{
			MType:  pick("mtype"),
			MClass: pick("mClass"),
			SClass: densities.SynapseClass(pick("sClass")),
		})
	}
	if columns == nil {
		return nil, nil, mtypedensities.Validationf(
			"%s is empty, expected a taxonomy header", filepath.Base(path))
	}
	return columns, rows, nil
}
