package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mtypedensities/internal/loader"
	"mtypedensities/internal/logging"
	"mtypedensities/pkg/densities"
	"mtypedensities/pkg/nrrd"
	"mtypedensities/pkg/voxel"
)

// probabilityOpts holds the flags of the from-probability-map command.
type probabilityOpts struct {
	annotation    string
	hierarchy     string
	maps          []string
	markers       []string
	synapseClass  string
	jobs          int
	maxDegenerate float64
	outputDir     string
}

func newProbabilityCmd(verbose *bool) *cobra.Command {
	opts := probabilityOpts{jobs: densities.DefaultJobs}

	cmd := &cobra.Command{
		Use:   "from-probability-map",
		Short: "Combine marker volumes through mtype probability maps",
		Long: `from-probability-map builds one density volume per mtype of the requested
synapse class by summing marker density volumes weighted with the
(region, molecular type) probabilities of one or more probability maps.
Regions are processed in parallel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(*verbose)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runProbability(cmd.Context(), &opts, log)
		},
	}

	cmd.Flags().StringVar(&opts.annotation, "annotation", "", "annotated volume (nrrd)")
	cmd.Flags().StringVar(&opts.hierarchy, "hierarchy", "", "region hierarchy (json)")
	cmd.Flags().StringArrayVar(&opts.maps, "probability-map", nil, "probability map (csv), repeatable")
	cmd.Flags().StringArrayVar(&opts.markers, "marker", nil, "marker density volume as name:path, repeatable")
	cmd.Flags().StringVar(&opts.synapseClass, "synapse-class", "", "synapse class to produce (EXC or INH)")
	cmd.Flags().IntVar(&opts.jobs, "n-jobs", opts.jobs, "number of regions processed in parallel")
	cmd.Flags().Float64Var(&opts.maxDegenerate, "max-degenerate-fraction", 0,
		"fail when the fraction of voxels uncovered by the probability maps exceeds this limit (0 disables)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "directory receiving the mtype density volumes")

	for _, flag := range []string{"annotation", "hierarchy", "probability-map", "marker", "synapse-class", "output-dir"} {
		_ = cmd.MarkFlagRequired(flag)
	}
	return cmd
}

func runProbability(ctx context.Context, opts *probabilityOpts, log *zap.SugaredLogger) error {
	annotation, tree, err := loadAtlas(opts.annotation, opts.hierarchy, log)
	if err != nil {
		return err
	}

	maps := make([]*densities.ProbabilityMap, 0, len(opts.maps))
	for _, path := range opts.maps {
		log.Infow("reading probability map", "path", path)
		pm, err := loader.LoadProbabilityMap(path)
		if err != nil {
			return err
		}
		maps = append(maps, pm)
	}

	markers, err := loadMarkers(opts.markers, log)
	if err != nil {
		return err
	}

	alloc, err := densities.NewProbabilityAllocator(densities.ProbabilityParams{
		Annotation:            annotation,
		Hierarchy:             tree,
		Maps:                  maps,
		Markers:               markers,
		Class:                 densities.SynapseClass(strings.ToUpper(opts.synapseClass)),
		Jobs:                  opts.jobs,
		MaxDegenerateFraction: opts.maxDegenerate,
		Log:                   log,
	})
	if err != nil {
		return err
	}
	out, err := alloc.Allocate(ctx)
	if err != nil {
		return err
	}
	return writeDensities(opts.outputDir, out, log)
}

// loadMarkers reads the name:path marker volume arguments.
func loadMarkers(args []string, log *zap.SugaredLogger) (map[string]*voxel.Field, error) {
	markers := make(map[string]*voxel.Field, len(args))
	for _, arg := range args {
		name, path, ok := strings.Cut(arg, ":")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid marker %q (must be name:path)", arg)
		}
		if _, dup := markers[name]; dup {
			return nil, fmt.Errorf("marker %q given twice", name)
		}
		log.Infow("reading marker volume", "marker", name, "path", path)
		f, err := nrrd.ReadScalar(path)
		if err != nil {
			return nil, err
		}
		markers[name] = f
	}
	return markers, nil
}
