// Package feedlog journals the incoming quote feed in CRC-framed,
// size/age-rotated segments. Replaying the journal through the service
// rebuilds every book deterministically, which is how the decomposition
// round-trip guarantee gets exercised against recorded sessions.
package feedlog
