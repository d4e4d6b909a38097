/*
Package crdt implements the delta-state CRDT family that dotlist replicates:
a causal dot store carrying a closed set of mergeable payload types, namely
the multi-value register (MvReg), the observed-remove map (OrMap) and the
densely-ordered sequence (OrArray).

CAUTION! Consider these two requirements:

  - Join, Diff and all mutators are safe against arbitrary message
    duplication, reordering and loss, but access to one store must be
    serialized explicitly by some outside measure, e.g. by funneling all
    mutation through a single owner goroutine as dotlist's package node
    does. This package does not(!) synchronize access by itself.
  - Mutators mint dots through the store's causal context and therefore
    must only ever run against the replica's own authoritative store,
    never against a received delta.

The state and join definitions of this package are a practical derivation
from the causal delta-CRDT specification by Almeida, Shoker and Baquero,
available under: https://arxiv.org/abs/1603.01529
*/
package crdt
