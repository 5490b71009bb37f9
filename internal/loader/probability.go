package loader

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mtypedensities"
	"mtypedensities/pkg/densities"
)

var probabilityKeyColumns = []string{"region", "molecular_type", "synapse_class"}

// LoadProbabilityMap reads one probability map CSV. The three key columns
// come first, every further column names an mtype.
func LoadProbabilityMap(path string) (*densities.ProbabilityMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error reading probability map file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error parsing probability map file: %w", err)
	}

	base := filepath.Base(path)
	if len(records) == 0 {
		return nil, mtypedensities.Validationf(
			"%s is empty, expected columns %v followed by mtype columns", base, probabilityKeyColumns)
	}

	header := records[0]
	if len(header) <= len(probabilityKeyColumns) ||
		!equalFields(header[:len(probabilityKeyColumns)], probabilityKeyColumns) {
		return nil, mtypedensities.Validationf(
			"%s must start with columns %v followed by at least one mtype column, got %v",
			base, probabilityKeyColumns, header)
	}

	mtypes := header[len(probabilityKeyColumns):]
	seen := make(map[string]bool, len(mtypes))
	for _, m := range mtypes {
		if seen[m] {
			return nil, mtypedensities.Validationf("duplicate mtype column %q in %s", m, base)
		}
		seen[m] = true
	}

	rows := make([]densities.ProbabilityRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		probs := make(map[string]float64, len(mtypes))
		for i, m := range mtypes {
			cell := strings.TrimSpace(rec[len(probabilityKeyColumns)+i])
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("error parsing probability %q in %s: %w", cell, base, err)
			}
			probs[m] = v
		}
		rows = append(rows, densities.ProbabilityRow{
			Key: densities.ProbabilityKey{
				Region:        strings.TrimSpace(rec[0]),
				MolecularType: strings.TrimSpace(rec[1]),
				Class:         densities.SynapseClass(strings.ToUpper(strings.TrimSpace(rec[2]))),
			},
			Probabilities: probs,
		})
	}
	return densities.NewProbabilityMap(rows)
}
