// Package nodeid addresses block instances inside a run.
//
// A block outside any map has a one-segment address, e.g. `SUMMARY`. A block
// inside a map body is addressed through the branches that contain it: the
// map's name indexed by branch, then the block, e.g. `ITEMS[2].DOUBLE` or
// `OUTER[0].INNER[3].CALL` for nested maps.
package nodeid
