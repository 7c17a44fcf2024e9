// Package binding evaluates pattern clauses against a fact view.
//
// Evaluation starts from the unit relation and threads a bag of bindings
// through each clause in order. A row's count is the number of distinct
// joins over visible triples that produced it: every visible triple counts
// once, whatever its support in the store.
//
// Choose clauses are delegated to a Chooser so the choose operator can live
// in its own package and call back into the engine for branch clauses.
package binding
