package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"mtypedensities/internal/loader"
	"mtypedensities/pkg/hierarchy"
	"mtypedensities/pkg/nrrd"
	"mtypedensities/pkg/voxel"
)

// loadAtlas reads the annotated volume together with its region hierarchy.
func loadAtlas(annotationPath, hierarchyPath string, log *zap.SugaredLogger) (*voxel.LabelField, *hierarchy.Tree, error) {
	log.Infow("reading annotation volume", "path", annotationPath)
	annotation, err := nrrd.ReadLabels(annotationPath)
	if err != nil {
		return nil, nil, err
	}

	log.Infow("reading region hierarchy", "path", hierarchyPath)
	tree, err := loader.LoadHierarchy(hierarchyPath)
	if err != nil {
		return nil, nil, err
	}
	return annotation, tree, nil
}

// writeDensities stores one <mtype>_densities.nrrd per computed field,
// creating the output directory if needed.
func writeDensities(dir string, fields map[string]*voxel.Field, log *zap.SugaredLogger) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	mtypes := make([]string, 0, len(fields))
	for m := range fields {
		mtypes = append(mtypes, m)
	}
	sort.Strings(mtypes)

	for _, m := range mtypes {
		path := filepath.Join(dir, m+"_densities.nrrd")
		if err := nrrd.WriteScalar(path, fields[m], false); err != nil {
			return err
		}
		log.Infow("mtype density written", "mtype", m, "path", path)
	}
	return nil
}
