// Package object defines the tracked-object representation shared by every
// other internal package.
//
// This package contains types and pure helpers only. All other internal
// packages import object; object imports nothing internal. This keeps the
// representation of a mirrored remote entity the foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - UID is the only identity; Namespace and Name are for ordering and display
//   - Ordering between objects is always (Namespace, Name), never arrival order
//   - ResourceVersion is opaque but comparable; the newer version wins on merge
//   - Payload is opaque to the engine and may be shrunk by a Projection
package object
