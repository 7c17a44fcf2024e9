package plan

import (
	"fmt"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// Plan is a compiled program: an ordered list of blocks.
type Plan struct {
	Blocks []Block
}

// Block is a named unit of pattern clauses and outputs, re-evaluated every
// round. Clauses run left to right starting from the single empty binding;
// every surviving binding feeds the outputs.
type Block struct {
	Name    string
	Clauses []Clause
	Outputs []Output
}

// Clause is one pattern step in a block or a choose branch.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the binding engine.
//
// Clause types:
//   - Find: entities carrying a tag
//   - Lookup: every (attribute, value) pair of an entity, one row each
//   - Attr: the values of one attribute of an entity
//   - Compare: equality / inequality between terms
//   - Apply: a function application (expression) binding or filtering
//   - Choose: ordered, mutually exclusive branches
type Clause interface {
	clauseNode() // Marker method - seals interface to this package
}

// Find binds Var to every entity with tag = Tag. If Var is already bound it
// filters instead.
type Find struct {
	Var string
	Tag string
}

func (Find) clauseNode() {}

// Lookup enumerates the facts of Entity, binding Attribute and Value
// (either may be empty to ignore that column). An unbound Entity scans all
// facts. Already-bound variables filter.
type Lookup struct {
	Entity    string
	Attribute string
	Value     string
}

func (Lookup) clauseNode() {}

// Attr joins on (Entity, Attribute, Value). Attribute is a literal name.
// An empty Value makes the clause an existence test: the row survives once
// if at least one value exists, and its count is unchanged.
type Attr struct {
	Entity    string
	Attribute string
	Value     string
}

func (Attr) clauseNode() {}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpNe CompareOp = "!="
)

// Compare filters rows by comparing two terms. For OpEq, if exactly one side
// is an unbound variable it is bound to the other side's value.
type Compare struct {
	Left  Term
	Op    CompareOp
	Right Term
}

func (Compare) clauseNode() {}

// Apply evaluates a CEL expression over the bound variables. With Var set
// the result is bound to Var; without it the expression must yield a bool
// and acts as a filter.
//
// Scope is filled in by Prepare: the variables bound before the apply, which
// are the only ones the expression may reference.
type Apply struct {
	Var   string
	Expr  string
	Scope []string
}

func (Apply) clauseNode() {}

// Choose selects, per group of rows agreeing on Outer, the first branch
// whose clauses match, and binds Results from that branch's output terms.
//
// Outer is filled in by Prepare: the variables bound before the choose.
type Choose struct {
	Branches []Branch
	Results  []string
	Outer    []string
}

func (Choose) clauseNode() {}

// Branch is one alternative of a choose. A branch without clauses is
// unconditional; at most one may exist and it must come last.
type Branch struct {
	Clauses []Clause
	Output  []Term
}

// Unconditional reports whether the branch always covers.
func (b Branch) Unconditional() bool {
	return len(b.Clauses) == 0
}

// Term is a variable reference or a constant.
type Term struct {
	Var   string
	Const ir.IRValue
}

// V returns a variable term.
func V(name string) Term { return Term{Var: name} }

// C returns a constant term.
func C(v ir.IRValue) Term { return Term{Const: v} }

// IsVar reports whether the term references a variable.
func (t Term) IsVar() bool { return t.Var != "" }

func (t Term) String() string {
	if t.IsVar() {
		return t.Var
	}
	if t.Const == nil {
		return "<empty>"
	}
	return t.Const.String()
}

// Output is what a block emits for each of its final bindings.
//
// This is a sealed interface - only Record and Add implement it.
type Output interface {
	outputNode()
}

// Record emits a derived entity. Its identifier is computed from Tag and the
// Key fields only. Payload fields are attached to that entity but never
// contribute to its identity or to the support counted for it.
type Record struct {
	Tag     string
	Key     []Field
	Payload []Field
}

func (Record) outputNode() {}

// Field is one attribute of a record.
type Field struct {
	Attribute string
	Value     Term
}

// Add attaches Attribute = Value to an existing entity bound to Entity.
type Add struct {
	Entity    string
	Attribute string
	Value     Term
}

func (Add) outputNode() {}

// ClauseName returns a short name for a clause type, used in error paths.
func ClauseName(c Clause) string {
	switch c.(type) {
	case Find:
		return "find"
	case Lookup:
		return "lookup"
	case Attr:
		return "attr"
	case Compare:
		return "compare"
	case Apply:
		return "apply"
	case Choose:
		return "choose"
	default:
		return fmt.Sprintf("%T", c)
	}
}
