package binding

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
	"github.com/jjedMoriAnktah/Eve/internal/relation"
)

// programKey identifies a compiled expression: the same text compiled
// against a different scope is a different program.
func programKey(expr string, scope []string) string {
	return expr + "\x00" + strings.Join(scope, ",")
}

// compileExpr parses, checks and plans expr with every scope variable
// declared as dyn.
func compileExpr(expr string, scope []string) (cel.Program, error) {
	opts := make([]cel.EnvOption, 0, len(scope))
	for _, name := range scope {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating environment: %w", err)
	}

	parsed, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("parsing %q: %w", expr, iss.Err())
	}
	checked, iss := env.Check(parsed)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("checking %q: %w", expr, iss.Err())
	}
	prg, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("generating program for %q: %w", expr, err)
	}
	return prg, nil
}

// activation converts the scope variables of b to CEL inputs. Entity
// references are passed as their ID string.
func activation(b relation.Binding, scope []string) map[string]any {
	vars := make(map[string]any, len(scope))
	for _, name := range scope {
		v, ok := b[name]
		if !ok {
			continue
		}
		switch v := v.(type) {
		case ir.IRString:
			vars[name] = string(v)
		case ir.IRInt:
			vars[name] = int64(v)
		case ir.IRBool:
			vars[name] = bool(v)
		case ir.IRRef:
			vars[name] = string(v)
		default:
			vars[name] = types.NullValue
		}
	}
	return vars
}

// fromCEL converts an evaluation result back to an IR value. Doubles and
// composite values have no IR form.
func fromCEL(val ref.Val) (ir.IRValue, error) {
	switch v := val.(type) {
	case types.String:
		return ir.IRString(v), nil
	case types.Int:
		return ir.IRInt(v), nil
	case types.Uint:
		if uint64(v) > 1<<63-1 {
			return nil, fmt.Errorf("uint result %d overflows int64", uint64(v))
		}
		return ir.IRInt(v), nil
	case types.Bool:
		return ir.IRBool(v), nil
	case types.Null:
		return ir.IRNull{}, nil
	case types.Double:
		return nil, fmt.Errorf("floats are forbidden: %v", float64(v))
	default:
		return nil, fmt.Errorf("unsupported result type %T", val)
	}
}
