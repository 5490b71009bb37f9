package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mtypedensities/internal/loader"
	"mtypedensities/internal/logging"
	"mtypedensities/pkg/densities"
	"mtypedensities/pkg/nrrd"
)

// compositionOpts holds the flags of the from-composition command.
type compositionOpts struct {
	annotation    string
	hierarchy     string
	metadata      string
	neuronDensity string
	taxonomy      string
	composition   string
	outputDir     string
}

func newCompositionCmd(verbose *bool) *cobra.Command {
	var opts compositionOpts

	cmd := &cobra.Command{
		Use:   "from-composition",
		Short: "Split the excitatory density along layer composition ratios",
		Long: `from-composition distributes the total excitatory density among the
excitatory mtypes of a neuron composition file, proportionally to each
mtype's share of its layer's average density. Inhibitory mtypes take no
part in this path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(*verbose)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runComposition(&opts, log)
		},
	}

	cmd.Flags().StringVar(&opts.annotation, "annotation", "", "annotated volume (nrrd)")
	cmd.Flags().StringVar(&opts.hierarchy, "hierarchy", "", "region hierarchy (json)")
	cmd.Flags().StringVar(&opts.metadata, "metadata", "", "region and layer metadata (json)")
	cmd.Flags().StringVar(&opts.neuronDensity, "neuron-density", "", "total excitatory density volume (nrrd)")
	cmd.Flags().StringVar(&opts.taxonomy, "taxonomy", "", "mtype taxonomy (tsv)")
	cmd.Flags().StringVar(&opts.composition, "composition", "", "neuron composition (yaml)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "directory receiving the mtype density volumes")

	for _, flag := range []string{"annotation", "hierarchy", "metadata", "neuron-density", "taxonomy", "composition", "output-dir"} {
		_ = cmd.MarkFlagRequired(flag)
	}
	return cmd
}

func runComposition(opts *compositionOpts, log *zap.SugaredLogger) error {
	annotation, tree, err := loadAtlas(opts.annotation, opts.hierarchy, log)
	if err != nil {
		return err
	}
	catalog, err := loader.LoadCatalog(opts.metadata)
	if err != nil {
		return err
	}

	log.Infow("reading excitatory density", "path", opts.neuronDensity)
	exc, err := nrrd.ReadScalar(opts.neuronDensity)
	if err != nil {
		return err
	}

	columns, taxRows, err := loader.LoadTaxonomy(opts.taxonomy)
	if err != nil {
		return err
	}
	tax, err := densities.NewTaxonomy(columns, taxRows)
	if err != nil {
		return err
	}

	compRows, err := loader.LoadComposition(opts.composition)
	if err != nil {
		return err
	}
	comp, err := densities.NewComposition(compRows)
	if err != nil {
		return err
	}

	alloc, err := densities.NewCompositionAllocator(densities.CompositionParams{
		Annotation:  annotation,
		Hierarchy:   tree,
		Catalog:     catalog,
		Excitatory:  exc,
		Taxonomy:    tax,
		Composition: comp,
		Log:         log,
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
