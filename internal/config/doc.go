// Package config loads list view declarations written in CUE.
//
// A configuration file declares named views:
//
//	views: workshops: {
//		group:      "babylon.gpte.redhat.com"
//		version:    "v1"
//		kind:       "Workshop"
//		namespaces: ["user-alice", "user-bob"]
//		keywords:   ["summit"]
//		keep:       ["metadata.labels", "spec.displayName"]
//	}
//
// The file is unified with an embedded schema that supplies defaults
// (pageSize 50, refreshInterval "30s") and rejects unknown fields.
// Errors carry CUE source positions.
package config
