package plan

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// DecodeError reports a malformed plan document.
type DecodeError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *DecodeError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Wire format. A plan document is
//
//	{"blocks": [{"name": ..., "clauses": [...], "outputs": [...]}]}
//
// where each clause is an object with exactly one of find, lookup, attr,
// compare, apply or choose set, and each output one of record or add. Terms
// are {"var": name} or {"const": value}; refs are written {"ref": id}.
type (
	planDoc struct {
		Blocks []blockDoc `json:"blocks"`
	}

	blockDoc struct {
		Name    string      `json:"name"`
		Clauses []clauseDoc `json:"clauses"`
		Outputs []outputDoc `json:"outputs"`
	}

	clauseDoc struct {
		Find    *findDoc    `json:"find,omitempty"`
		Lookup  *lookupDoc  `json:"lookup,omitempty"`
		Attr    *lookupDoc  `json:"attr,omitempty"`
		Compare *compareDoc `json:"compare,omitempty"`
		Apply   *applyDoc   `json:"apply,omitempty"`
		Choose  *chooseDoc  `json:"choose,omitempty"`
	}

	findDoc struct {
		Var string `json:"var"`
		Tag string `json:"tag"`
	}

	lookupDoc struct {
		Entity    string `json:"entity"`
		Attribute string `json:"attribute,omitempty"`
		Value     string `json:"value,omitempty"`
	}

	compareDoc struct {
		Left  termDoc `json:"left"`
		Op    string  `json:"op"`
		Right termDoc `json:"right"`
	}

	applyDoc struct {
		Var  string `json:"var,omitempty"`
		Expr string `json:"expr"`
	}

	chooseDoc struct {
		Results  []string    `json:"results"`
		Branches []branchDoc `json:"branches"`
	}

	branchDoc struct {
		Clauses []clauseDoc `json:"clauses,omitempty"`
		Output  []termDoc   `json:"output"`
	}

	termDoc struct {
		Var   string          `json:"var,omitempty"`
		Const json.RawMessage `json:"const,omitempty"`
	}

	outputDoc struct {
		Record *recordDoc `json:"record,omitempty"`
		Add    *addDoc    `json:"add,omitempty"`
	}

	recordDoc struct {
		Tag     string     `json:"tag"`
		Key     []fieldDoc `json:"key"`
		Payload []fieldDoc `json:"payload,omitempty"`
	}

	fieldDoc struct {
		Attribute string          `json:"attribute"`
		Var       string          `json:"var,omitempty"`
		Const     json.RawMessage `json:"const,omitempty"`
	}

	addDoc struct {
		Entity    string  `json:"entity"`
		Attribute string  `json:"attribute"`
		Value     termDoc `json:"value"`
	}
)

// DecodeJSON parses a plan document. Unknown fields are rejected. The plan is
// not validated; pass it to Prepare.
func DecodeJSON(data []byte) (*Plan, error) {
	var doc planDoc
	if err := strictUnmarshal(data, &doc); err != nil {
		return nil, &DecodeError{Field: "plan", Message: err.Error()}
	}
	p := &Plan{}
	for i, bd := range doc.Blocks {
		b, err := decodeBlock(fmt.Sprintf("blocks[%d]", i), bd)
		if err != nil {
			return nil, err
		}
		p.Blocks = append(p.Blocks, b)
	}
	return p, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// FromCUE decodes a plan from a CUE value with a top-level blocks list.
// Errors carry the source position of the offending block.
func FromCUE(v cue.Value) (*Plan, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	blocksVal := v.LookupPath(cue.ParsePath("blocks"))
	if !blocksVal.Exists() {
		return nil, &DecodeError{Field: "blocks", Message: "blocks is required", Pos: v.Pos()}
	}
	iter, err := blocksVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	p := &Plan{}
	for i := 0; iter.Next(); i++ {
		field := fmt.Sprintf("blocks[%d]", i)
		elem := iter.Value()
		data, err := elem.MarshalJSON()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var bd blockDoc
		if err := strictUnmarshal(data, &bd); err != nil {
			return nil, &DecodeError{Field: field, Message: err.Error(), Pos: elem.Pos()}
		}
		b, err := decodeBlock(field, bd)
		if err != nil {
			if de, ok := err.(*DecodeError); ok && !de.Pos.IsValid() {
				de.Pos = elem.Pos()
			}
			return nil, err
		}
		p.Blocks = append(p.Blocks, b)
	}
	return p, nil
}

// CompileCUE compiles CUE source text and decodes the plan it describes.
func CompileCUE(src string) (*Plan, error) {
	ctx := cuecontext.New()
	return FromCUE(ctx.CompileString(src, cue.Filename("plan.cue")))
}

// LoadCUE loads the CUE package in dir and decodes the plan it describes.
func LoadCUE(dir string) (*Plan, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &DecodeError{Field: "cue", Message: fmt.Sprintf("no CUE instances in %s", dir)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}
	return FromCUE(cuecontext.New().BuildInstance(inst))
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &DecodeError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}

func decodeBlock(path string, bd blockDoc) (Block, error) {
	b := Block{Name: bd.Name}
	clauses, err := decodeClauses(path+".clauses", bd.Clauses)
	if err != nil {
		return Block{}, err
	}
	b.Clauses = clauses
	for i, od := range bd.Outputs {
		o, err := decodeOutput(fmt.Sprintf("%s.outputs[%d]", path, i), od)
		if err != nil {
			return Block{}, err
		}
		b.Outputs = append(b.Outputs, o)
	}
	return b, nil
}

func decodeClauses(path string, docs []clauseDoc) ([]Clause, error) {
	var out []Clause
	for i, cd := range docs {
		c, err := decodeClause(fmt.Sprintf("%s[%d]", path, i), cd)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeClause(path string, cd clauseDoc) (Clause, error) {
	set := 0
	for _, present := range []bool{cd.Find != nil, cd.Lookup != nil, cd.Attr != nil, cd.Compare != nil, cd.Apply != nil, cd.Choose != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, &DecodeError{Field: path, Message: fmt.Sprintf("clause must set exactly one of find, lookup, attr, compare, apply, choose (got %d)", set)}
	}

	switch {
	case cd.Find != nil:
		return Find{Var: cd.Find.Var, Tag: cd.Find.Tag}, nil
	case cd.Lookup != nil:
		return Lookup{Entity: cd.Lookup.Entity, Attribute: cd.Lookup.Attribute, Value: cd.Lookup.Value}, nil
	case cd.Attr != nil:
		return Attr{Entity: cd.Attr.Entity, Attribute: cd.Attr.Attribute, Value: cd.Attr.Value}, nil
	case cd.Compare != nil:
		left, err := decodeTerm(path+".compare.left", cd.Compare.Left.Var, cd.Compare.Left.Const)
		if err != nil {
			return nil, err
		}
		right, err := decodeTerm(path+".compare.right", cd.Compare.Right.Var, cd.Compare.Right.Const)
		if err != nil {
			return nil, err
		}
		return Compare{Left: left, Op: CompareOp(cd.Compare.Op), Right: right}, nil
	case cd.Apply != nil:
		return Apply{Var: cd.Apply.Var, Expr: cd.Apply.Expr}, nil
	default:
		return decodeChoose(path+".choose", cd.Choose)
	}
}

func decodeChoose(path string, cd *chooseDoc) (Clause, error) {
	c := Choose{Results: cd.Results}
	for i, bd := range cd.Branches {
		bpath := fmt.Sprintf("%s.branches[%d]", path, i)
		clauses, err := decodeClauses(bpath+".clauses", bd.Clauses)
		if err != nil {
			return nil, err
		}
		br := Branch{Clauses: clauses}
		for j, td := range bd.Output {
			t, err := decodeTerm(fmt.Sprintf("%s.output[%d]", bpath, j), td.Var, td.Const)
			if err != nil {
				return nil, err
			}
			br.Output = append(br.Output, t)
		}
		c.Branches = append(c.Branches, br)
	}
	return c, nil
}

func decodeOutput(path string, od outputDoc) (Output, error) {
	switch {
	case od.Record != nil && od.Add == nil:
		r := Record{Tag: od.Record.Tag}
		var err error
		if r.Key, err = decodeFields(path+".record.key", od.Record.Key); err != nil {
			return nil, err
		}
		if r.Payload, err = decodeFields(path+".record.payload", od.Record.Payload); err != nil {
			return nil, err
		}
		return r, nil
	case od.Add != nil && od.Record == nil:
		v, err := decodeTerm(path+".add.value", od.Add.Value.Var, od.Add.Value.Const)
		if err != nil {
			return nil, err
		}
		return Add{Entity: od.Add.Entity, Attribute: od.Add.Attribute, Value: v}, nil
	default:
		return nil, &DecodeError{Field: path, Message: "output must set exactly one of record, add"}
	}
}

func decodeFields(path string, docs []fieldDoc) ([]Field, error) {
	var out []Field
	for i, fd := range docs {
		t, err := decodeTerm(fmt.Sprintf("%s[%d]", path, i), fd.Var, fd.Const)
		if err != nil {
			return nil, err
		}
		out = append(out, Field{Attribute: fd.Attribute, Value: t})
	}
	return out, nil
}

func decodeTerm(path, name string, raw json.RawMessage) (Term, error) {
	hasConst := len(raw) > 0
	switch {
	case name != "" && hasConst:
		return Term{}, &DecodeError{Field: path, Message: "term sets both var and const"}
	case name != "":
		return V(name), nil
	case !hasConst:
		return Term{}, &DecodeError{Field: path, Message: "term requires var or const"}
	}
	v, err := ir.UnmarshalIRValue(raw)
	if err != nil {
		return Term{}, &DecodeError{Field: path, Message: err.Error()}
	}
	if !ir.IsStorable(v) {
		return Term{}, &DecodeError{Field: path, Message: "const must not be null"}
	}
	return C(v), nil
}
