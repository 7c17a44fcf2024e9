// Package testutil runs YAML round scripts against the evaluator and
// compares the rendered outputs with golden files.
//
// A script names a plan file and lists rounds of input facts to add and
// remove:
//
//	name: predicate-fallback
//	description: a person's verdict flips when a dog arrives
//	plan: ../plans/cool.cue
//	rounds:
//	  - add:
//	      - {e: A, a: tag, v: person}
//	  - add:
//	      - {e: A, a: dog, v: rex}
//
// Values are YAML scalars; entity references are written {ref: id}. A fact
// may carry a count n (default 1).
//
// Rendered outputs describe derived entities by their identity key, so
// golden files never contain generated identifiers.
package testutil
