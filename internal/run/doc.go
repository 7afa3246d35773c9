/*
Package run executes a pipeline.App over input records.

Each record gets its own root frame and runs concurrently with the other
records. Inside a frame the units of a scope run through a dag.Executor: a
block unit executes one block, a map unit evaluates the map, pushes one
frame per branch, runs the child scope in every branch and collects the
results back into creation order before executing the reduce.

Cacheable blocks consult the store first. Identical misses in flight at the
same time are collapsed with singleflight, so concurrent branches that
compute the same key call the provider once. Store failures never fail a
run: read errors count as misses and write errors are reported in the
result.
*/
package run
