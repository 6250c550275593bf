// Package depgraph compiles an expanded task list and its dependency edges
// into a submission plan: cycle-free ordering via Kahn's algorithm,
// multi-instance coordination/application task splitting, and auto-naming
// of unnamed tasks (§4.G).
package depgraph
