// Package eval runs rounds of a compiled plan over an EAV fact store.
//
// A round takes a batch of signed input deltas and is all-or-nothing:
//
//  1. The deltas are staged and summed per triple; a triple whose support
//     would go negative aborts the round.
//  2. Blocks are evaluated layer by layer in dependency order. Blocks of one
//     layer run concurrently and read the staged inputs overlaid with what
//     earlier layers derived in the same round.
//  3. Record outputs are given stable identifiers from their identity key;
//     payload fields are attached afterwards and never affect identity or
//     identity support.
//  4. The new derived view is diffed against the previous round's. Every
//     triple whose support moved is reported, removals before additions.
//  5. If a journal is configured the round is recorded, then the store
//     commits and the identity live table is replaced.
//
// Support is the number of distinct joins over visible triples. An input
// fact added twice is still one visible triple, so the second add derives
// nothing new. Summing every delta an engine has emitted gives its current
// derived supports exactly.
//
// Failures local to a group of rows (an expression error, a missing key
// value) drop those rows and are returned as diagnostics. They never abort
// the round.
package eval
