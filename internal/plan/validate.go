package plan

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Validation error codes (E200-E299)
const (
	// Choose errors (E201-E204)
	ErrArityMismatch         = "E201" // branch output count differs from result count
	ErrUnconditionalNotLast  = "E202" // unconditional branch must be last
	ErrMultipleUnconditional = "E203" // at most one unconditional branch
	ErrEmptyChoose           = "E204" // choose without branches

	// Variable errors (E205-E206, E211)
	ErrUnboundVariable   = "E205" // variable used before any clause binds it
	ErrUnboundComparison = "E206" // both sides of == unbound
	ErrRebound           = "E211" // result or apply variable already bound

	// Output errors (E207, E213)
	ErrMissingIdentityKey = "E207" // record without identity key fields
	ErrDuplicateField     = "E213" // duplicate or reserved record attribute

	// Structural errors
	ErrDuplicateBlock    = "E208" // duplicate block name
	ErrInvalidExpression = "E209" // apply expression does not compile
	ErrCyclicDependency  = "E210" // blocks depend on each other's output
	ErrEmptyName         = "E212" // empty block name, tag, attribute or variable
	ErrInvalidOperator   = "E214" // unknown comparison operator
	ErrEmptyTerm         = "E215" // term with neither variable nor constant
)

// ValidationError is one problem found in a plan.
type ValidationError struct {
	Block   string `json:"block,omitempty"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Block != "" {
		return fmt.Sprintf("[%s] block %q: %s: %s", e.Code, e.Block, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Errors flattens err into the validation errors it carries.
func Errors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range multierr.Errors(err) {
		var ve ValidationError
		if errors.As(e, &ve) {
			out = append(out, ve)
		}
	}
	return out
}

// HasCode reports whether err carries a validation error with code.
func HasCode(err error, code string) bool {
	for _, ve := range Errors(err) {
		if ve.Code == code {
			return true
		}
	}
	return false
}

// IsArityMismatch reports whether err rejects a choose whose branches
// disagree with its result count.
func IsArityMismatch(err error) bool {
	return HasCode(err, ErrArityMismatch)
}

// Validate checks p without preparing it. All problems are reported, not
// just the first; the result combines them with multierr.
func Validate(p *Plan) error {
	_, err := Prepare(p)
	return err
}

// checker walks one block, tracking which variables are bound at each
// clause. It rewrites clauses with their analysis results filled in.
type checker struct {
	block string
	errs  []ValidationError
}

func (c *checker) fail(field, code, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{
		Block:   c.block,
		Field:   field,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

func (c *checker) checkBlock(b Block) Block {
	bound := varSet{}
	out := Block{Name: b.Name}
	out.Clauses = c.clauses("clauses", b.Clauses, bound)
	out.Outputs = c.outputs(b.Outputs, bound)
	return out
}

func (c *checker) clauses(path string, clauses []Clause, bound varSet) []Clause {
	out := make([]Clause, 0, len(clauses))
	for i, cl := range clauses {
		out = append(out, c.clause(fmt.Sprintf("%s[%d].%s", path, i, ClauseName(cl)), cl, bound))
	}
	return out
}

func (c *checker) clause(path string, cl Clause, bound varSet) Clause {
	switch cl := cl.(type) {
	case Find:
		if cl.Var == "" {
			c.fail(path+".var", ErrEmptyName, "find requires a variable")
		}
		if cl.Tag == "" {
			c.fail(path+".tag", ErrEmptyName, "find requires a tag")
		}
		bound.add(cl.Var)
	case Lookup:
		if cl.Entity == "" {
			c.fail(path+".entity", ErrEmptyName, "lookup requires an entity variable")
		}
		bound.add(cl.Entity, cl.Attribute, cl.Value)
	case Attr:
		if cl.Entity == "" {
			c.fail(path+".entity", ErrEmptyName, "attr requires an entity variable")
		}
		if cl.Attribute == "" {
			c.fail(path+".attribute", ErrEmptyName, "attr requires an attribute")
		}
		bound.add(cl.Entity, cl.Value)
	case Compare:
		c.compare(path, cl, bound)
	case Apply:
		cl.Scope = bound.sorted()
		if cl.Expr == "" {
			c.fail(path+".expr", ErrInvalidExpression, "apply requires an expression")
		}
		if cl.Var != "" && bound.has(cl.Var) {
			c.fail(path+".var", ErrRebound, "variable %q is already bound", cl.Var)
		}
		bound.add(cl.Var)
		return cl
	case Choose:
		return c.choose(path, cl, bound)
	default:
		c.fail(path, ErrEmptyName, "unknown clause type %T", cl)
	}
	return cl
}

func (c *checker) compare(path string, cl Compare, bound varSet) {
	if cl.Op != OpEq && cl.Op != OpNe {
		c.fail(path+".op", ErrInvalidOperator, "unknown operator %q", cl.Op)
		return
	}
	left, right := c.termBound(path+".left", cl.Left, bound), c.termBound(path+".right", cl.Right, bound)
	switch {
	case left && right:
	case cl.Op == OpNe:
		for _, t := range []Term{cl.Left, cl.Right} {
			if t.IsVar() && !bound.has(t.Var) {
				c.fail(path, ErrUnboundVariable, "variable %q is not bound", t.Var)
			}
		}
	case !left && !right:
		c.fail(path, ErrUnboundComparison, "both sides of %s %s %s are unbound", cl.Left, cl.Op, cl.Right)
	case !left:
		bound.add(cl.Left.Var)
	default:
		bound.add(cl.Right.Var)
	}
}

// termBound reports whether t has a value at this point. Constants always
// do; an empty term is reported and treated as bound.
func (c *checker) termBound(path string, t Term, bound varSet) bool {
	if t.IsVar() {
		return bound.has(t.Var)
	}
	if t.Const == nil {
		c.fail(path, ErrEmptyTerm, "term has neither variable nor constant")
	}
	return true
}

func (c *checker) choose(path string, cl Choose, bound varSet) Choose {
	out := Choose{Results: cl.Results, Outer: bound.sorted()}
	if len(cl.Branches) == 0 {
		c.fail(path, ErrEmptyChoose, "choose has no branches")
	}

	unconditional := -1
	for i, br := range cl.Branches {
		bpath := fmt.Sprintf("%s.branches[%d]", path, i)
		if br.Unconditional() {
			if unconditional >= 0 {
				c.fail(bpath, ErrMultipleUnconditional, "branch %d is unconditional but so is branch %d", i, unconditional)
			} else if i != len(cl.Branches)-1 {
				c.fail(bpath, ErrUnconditionalNotLast, "unconditional branch %d must be last of %d", i, len(cl.Branches))
			}
			unconditional = i
		}
		if len(br.Output) != len(cl.Results) {
			c.fail(bpath+".output", ErrArityMismatch,
				"branch returns %d values but choose binds %d", len(br.Output), len(cl.Results))
		}

		inner := bound.clone()
		prepared := Branch{Clauses: c.clauses(bpath+".clauses", br.Clauses, inner), Output: br.Output}
		for j, t := range br.Output {
			c.use(fmt.Sprintf("%s.output[%d]", bpath, j), t, inner)
		}
		out.Branches = append(out.Branches, prepared)
	}

	seen := varSet{}
	for i, name := range cl.Results {
		rpath := fmt.Sprintf("%s.results[%d]", path, i)
		switch {
		case name == "":
			c.fail(rpath, ErrEmptyName, "result variable name is empty")
		case bound.has(name) || seen.has(name):
			c.fail(rpath, ErrRebound, "variable %q is already bound", name)
		}
		seen.add(name)
	}
	bound.add(cl.Results...)
	return out
}

// use checks a term read by an output.
func (c *checker) use(path string, t Term, bound varSet) {
	if t.IsVar() {
		if !bound.has(t.Var) {
			c.fail(path, ErrUnboundVariable, "variable %q is not bound", t.Var)
		}
		return
	}
	if t.Const == nil {
		c.fail(path, ErrEmptyTerm, "term has neither variable nor constant")
	}
}

func (c *checker) outputs(outputs []Output, bound varSet) []Output {
	for i, o := range outputs {
		path := fmt.Sprintf("outputs[%d]", i)
		switch o := o.(type) {
		case Record:
			c.record(path+".record", o, bound)
		case Add:
			if o.Entity == "" {
				c.fail(path+".add.entity", ErrEmptyName, "add requires an entity variable")
			} else if !bound.has(o.Entity) {
				c.fail(path+".add.entity", ErrUnboundVariable, "variable %q is not bound", o.Entity)
			}
			if o.Attribute == "" {
				c.fail(path+".add.attribute", ErrEmptyName, "add requires an attribute")
			}
			c.use(path+".add.value", o.Value, bound)
		default:
			c.fail(path, ErrEmptyName, "unknown output type %T", o)
		}
	}
	return outputs
}

func (c *checker) record(path string, r Record, bound varSet) {
	if r.Tag == "" {
		c.fail(path+".tag", ErrEmptyName, "record requires a tag")
	}
	if len(r.Key) == 0 {
		c.fail(path+".key", ErrMissingIdentityKey, "record %q declares no identity key", r.Tag)
	}
	attrs := varSet{}
	check := func(fpath string, f Field) {
		switch {
		case f.Attribute == "":
			c.fail(fpath+".attribute", ErrEmptyName, "record field requires an attribute")
		case f.Attribute == "tag":
			c.fail(fpath+".attribute", ErrDuplicateField, "attribute %q is reserved for the record tag", f.Attribute)
		case attrs.has(f.Attribute):
			c.fail(fpath+".attribute", ErrDuplicateField, "attribute %q appears twice", f.Attribute)
		}
		attrs.add(f.Attribute)
		c.use(fpath+".value", f.Value, bound)
	}
	for i, f := range r.Key {
		check(fmt.Sprintf("%s.key[%d]", path, i), f)
	}
	for i, f := range r.Payload {
		check(fmt.Sprintf("%s.payload[%d]", path, i), f)
	}
}

func combine(errs []ValidationError) error {
	var err error
	for _, ve := range errs {
		err = multierr.Append(err, ve)
	}
	return err
}
