// Package mtypedensities splits total neuron density volumes into per-mtype
// density volumes.
//
// A total density field counts excitatory or inhibitory neurons per voxel
// without distinguishing morphological types. The packages under pkg/ allocate
// that total among mtypes using one of three strategies: depth-resolved
// density profiles, layer composition ratios, or molecular marker probability
// maps. The command line frontend lives under cmd/mtypedensities.
//
// The root package only holds the error kind shared by every subpackage.
package mtypedensities
