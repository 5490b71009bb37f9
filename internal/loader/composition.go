package loader

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mtypedensities"
	"mtypedensities/pkg/densities"
)

type compositionTraits struct {
	Layer any    `yaml:"layer"`
	MType string `yaml:"mtype"`
}

type compositionNeuron struct {
	Density float64           `yaml:"density"`
	Traits  compositionTraits `yaml:"traits"`
}

type compositionDocument struct {
	Neurons []compositionNeuron `yaml:"neurons"`
}

// LoadComposition reads the neuron composition YAML document. Layer traits
// are normalized to the canonical "layer_<x>" form.
func LoadComposition(path string) ([]densities.CompositionRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading composition file: %w", err)
	}

	var doc compositionDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing composition file: %w", err)
	}
	if len(doc.Neurons) == 0 {
		return nil, mtypedensities.Validationf("composition file defines no neurons")
	}

	rows := make([]densities.CompositionRow, 0, len(doc.Neurons))
	for _, n := range doc.Neurons {
		layer, err := layerName(n.Traits.Layer)
		if err != nil {
			return nil, err
		}
		rows = append(rows, densities.CompositionRow{
			MType:   n.Traits.MType,
			Layer:   layer,
			Density: n.Density,
		})
	}
	return rows, nil
}

// layerName maps a layer trait, given either as an integer or a string, to
// the "layer_<x>" form used throughout the pipeline.
func layerName(v any) (string, error) {
	switch layer := v.(type) {
	case int:
		return fmt.Sprintf("layer_%d", layer), nil
	case string:
		if strings.HasPrefix(layer, "layer_") {
			return layer, nil
		}
		return "layer_" + layer, nil
	default:
		return "", mtypedensities.Validationf(
			"composition layer %v is neither an integer nor a string", v)
	}
}
