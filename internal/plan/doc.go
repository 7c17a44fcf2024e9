// Package plan defines the compiled evaluation plan consumed by the
// evaluator, and the checks run on it before any round executes.
//
// A plan is a list of blocks. Each block is a sequence of clauses (find,
// lookup, attr, compare, apply, choose) evaluated left to right into a
// relation of bindings, followed by outputs (record, add) that turn every
// surviving binding into derived facts.
//
// Prepare validates a plan and computes:
//   - the outer variables of each choose (its exclusivity key)
//   - the variables visible to each apply expression
//   - evaluation layers from the blocks' read/write dependencies
//
// Plans are authored elsewhere. DecodeJSON, FromCUE, CompileCUE and LoadCUE
// read the compiled form; they are not a surface-language compiler.
package plan
