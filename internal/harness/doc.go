// Package harness runs conformance scenarios against the sync machine.
//
// # Scenario Format
//
// Scenarios are YAML files listing steps. Each step carries exactly one
// action and an optional expect clause checked against the state after
// the step:
//
//	name: limit_pauses_paging
//	description: "Paging stops once the filtered view reaches the limit"
//	steps:
//	  - start: { limit: 2, page_size: 3 }
//	  - page:
//	      items:
//	        - { uid: a, namespace: ns, name: a, rv: "1" }
//	        - { uid: b, namespace: ns, name: b, rv: "1" }
//	      continue: t1
//	    expect:
//	      items: [a, b]
//	      finished: false
//	      wants_fetch: false
//	  - modify: { limit: 4 }
//	    expect:
//	      wants_fetch: true
//	      request: { continue: t1 }
//
// Step kinds: start, page, modify, remove, update, refresh, cancel and
// advance (moves the fake scheduler; refresh timers that fire dispatch
// their sweep before the expect clause is checked).
//
// # Determinism
//
// Every run uses a fresh machine with testutil.FakeScheduler and
// testutil.SequentialIDs, so activity IDs ("act-1", "act-2", ...) and
// sequence numbers are identical across runs. The trace of per-step
// summaries is compared against golden files with RunWithGolden.
package harness
