// Package cli wires the command line interface of the mtype density
// pipeline.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// Execute builds the command tree and runs it until completion or until the
// context is cancelled.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:   "mtypedensities",
		Short: "Split total neuron density volumes into per-mtype density volumes",
		Long: `mtypedensities distributes total excitatory and inhibitory neuron density
volumes among morphological types, either along depth density profiles,
along layer composition ratios, or through marker probability maps. Every
produced mtype is written as <mtype>_densities.nrrd.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newProfilesCmd(&verbose))
	root.AddCommand(newCompositionCmd(&verbose))
	root.AddCommand(newProbabilityCmd(&verbose))

	return root.ExecuteContext(ctx)
}
