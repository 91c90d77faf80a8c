package object

// Version constants for the journal schema and engine.
const (
	// JournalVersion is the page journal record format version.
	JournalVersion = "1"

	// EngineVersion is the listsync engine version.
	EngineVersion = "0.1.0"
)
