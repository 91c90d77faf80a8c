// Package filter builds the predicates and prune projections the engine
// applies to fetched objects.
//
// Predicates decide membership in the filtered view:
//   - Keywords: every keyword appears in the object's searchable text
//   - Fuzzy: the query fuzzy-matches "namespace/name"
//   - Labels: metadata.labels contains every selector pair
//   - All: conjunction, skipping nil predicates
//
// KeepFields is a projection that trims payloads to a set of dotted paths
// so large objects are not held in memory in full.
package filter
