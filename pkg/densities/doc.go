// Package densities allocates total neuron density fields among mtypes.
//
// Three weight table variants drive the allocation: depth resolved relative
// density profiles, layer composition ratios and molecular marker probability
// maps. Each table validates its own invariants at construction, so the
// allocators operate on data that is already known to be sound. Every fatal
// input problem is reported as a domain validation error wrapping
// mtypedensities.ErrDomainValidation.
package densities
