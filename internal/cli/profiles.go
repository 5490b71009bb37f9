package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mtypedensities/internal/loader"
	"mtypedensities/internal/logging"
	"mtypedensities/pkg/config"
	"mtypedensities/pkg/densities"
	"mtypedensities/pkg/nrrd"
	"mtypedensities/pkg/slicer"
	"mtypedensities/pkg/voxel"
)

// profilesOpts holds the flags of the from-profiles command.
type profilesOpts struct {
	annotation       string
	hierarchy        string
	metadata         string
	directionVectors string
	config           string
	outputDir        string
	maxDegenerate    float64
}

func newProfilesCmd(verbose *bool) *cobra.Command {
	var opts profilesOpts

	cmd := &cobra.Command{
		Use:   "from-profiles",
		Short: "Split total densities along depth density profiles",
		Long: `from-profiles slices every layer of the region of interest into equal
depth bins along the direction vectors and distributes the total excitatory
and inhibitory densities among mtypes according to per-slice density
profiles.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(*verbose)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runProfiles(&opts, log)
		},
	}

	cmd.Flags().StringVar(&opts.annotation, "annotation", "", "annotated volume (nrrd)")
	cmd.Flags().StringVar(&opts.hierarchy, "hierarchy", "", "region hierarchy (json)")
	cmd.Flags().StringVar(&opts.metadata, "metadata", "", "region and layer metadata (json)")
	cmd.Flags().StringVar(&opts.directionVectors, "direction-vectors", "", "direction vector volume (nrrd)")
	cmd.Flags().StringVar(&opts.config, "config", "", "profile configuration (yaml)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "directory receiving the mtype density volumes")
	cmd.Flags().Float64Var(&opts.maxDegenerate, "max-degenerate-fraction", 0,
		"fail when the fraction of voxels excluded for degenerate direction vectors exceeds this limit (0 disables)")

	for _, flag := range []string{"annotation", "hierarchy", "metadata", "direction-vectors", "config", "output-dir"} {
		_ = cmd.MarkFlagRequired(flag)
	}
	return cmd
}

func runProfiles(opts *profilesOpts, log *zap.SugaredLogger) error {
	cfg, err := config.Load(opts.config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	annotation, tree, err := loadAtlas(opts.annotation, opts.hierarchy, log)
	if err != nil {
		return err
	}
	catalog, err := loader.LoadCatalog(opts.metadata)
	if err != nil {
		return err
	}

	log.Infow("reading direction vectors", "path", opts.directionVectors)
	vectors, err := nrrd.ReadVectors(opts.directionVectors)
	if err != nil {
		return err
	}

	rows, counts, err := loader.LoadProfiles(
		cfg.MTypeToProfileMapPath, cfg.LayerSlicesPath, cfg.DensityProfilesDirPath)
	if err != nil {
		return err
	}
	profiles, err := densities.NewProfiles(rows, counts)
	if err != nil {
		return err
	}
	if dropped := profiles.DroppedLayers(); len(dropped) > 0 {
		log.Infow("dropped profile rows of layers without slice counts", "layers", dropped)
	}

	var exc, inh *voxel.Field
	if cfg.ExcitatoryNeuronDensityPath != "" {
		log.Infow("reading excitatory density", "path", cfg.ExcitatoryNeuronDensityPath)
		if exc, err = nrrd.ReadScalar(cfg.ExcitatoryNeuronDensityPath); err != nil {
			return err
		}
	}
	if cfg.InhibitoryNeuronDensityPath != "" {
		log.Infow("reading inhibitory density", "path", cfg.InhibitoryNeuronDensityPath)
		if inh, err = nrrd.ReadScalar(cfg.InhibitoryNeuronDensityPath); err != nil {
			return err
		}
	}

	indexer, err := slicer.New(slicer.Params{Vectors: vectors, Log: log})
	if err != nil {
		return err
	}

	alloc, err := densities.NewProfileAllocator(densities.ProfileParams{
		Annotation:            annotation,
		Hierarchy:             tree,
		Catalog:               catalog,
		Indexer:               indexer,
		Profiles:              profiles.Relative(),
		Excitatory:            exc,
		Inhibitory:            inh,
		MaxDegenerateFraction: opts.maxDegenerate,
		Log:                   log,
	})
	if err != nil {
		return err
	}
	out, err := alloc.Allocate()
	if err != nil {
		return err
	}
	return writeDensities(opts.outputDir, out, log)
}
