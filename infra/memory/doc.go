// Package memory provides the allocation side of the engine: a typed
// record pool, the SPSC retire ring, and epoch-based reclamation that
// lets snapshot readers walk book state without locks while the writer
// keeps mutating.
package memory
