// Package factstore holds EAV facts with signed multiplicity.
//
// A triple's support is the sum of every delta ever applied to it. A triple
// is visible while its support is positive; once it reaches zero the entry is
// kept as a tombstone for one more round so the next diff can observe the
// removal, then compacted.
//
// Rounds are staged in a Txn. Deltas for the same triple within a round are
// summed before support changes, so an add and a retract in the same round
// cancel out. Commit is the only write to shared state and rejects any round
// that would drive a support negative.
package factstore
