// Package registry implements the per-node Guardian (spec.md §4.8): the
// single entry point a node's cmd/ wiring calls once per entry type it
// wants to host, and the typeName → Region lookup table every later
// caller on that node consults.
package registry
