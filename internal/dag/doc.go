// Package dag is the scheduling layer. A Graph holds string-keyed units and
// their dependencies; DetectCycles and TopologicalOrder validate and order
// it; an Executor runs every unit concurrently as soon as its dependencies
// have succeeded.
package dag
