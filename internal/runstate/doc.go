// Package runstate holds the output table of one execution.
//
// The table is partitioned into frames. The root frame belongs to one input
// record; every Map branch pushes a child frame keyed by the branch index.
// A branch writes only into its own frame, so concurrent branches never
// contend on a key. Lookups walk from a frame to its ancestors, which is how
// a block inside a Map reads the outputs of blocks declared before it.
package runstate
