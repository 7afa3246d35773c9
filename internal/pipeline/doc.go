/*
Package pipeline turns a loaded model.App into a validated execution plan.

Blocks are taken in declaration order. A map block opens a child scope and
the next unmatched reduce block closes it; everything declared in between
runs once per branch. Each scope owns a dag.Graph of units, where a unit is
either a single block or a whole child map scope, so the run can schedule a
scope without looking inside its children.

Construction happens in passes, each of which can fail with a *DAGError:
names are checked for uniqueness, references are linked into a graph of all
blocks and checked for cycles and forward references, map and reduce blocks
are matched into scopes, and finally the per-scope unit graphs are built.
*/
package pipeline
