// Package block implements the nine block variants of a pipeline.
//
// Variant is a closed set. A Spec pairs a declared block with its decoded,
// variant-specific configuration, and two functions dispatch over it:
// Execute produces the block's value, and CacheKeyMaterial describes what
// that value depends on so the run can memoize it. Neither function touches
// shared run state; values flow in through Env and out through Result.
package block
