package testutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/jjedMoriAnktah/Eve/internal/eval"
)

// Transcript is the result of running a script.
type Transcript struct {
	Engine  *eval.Engine
	Outputs []*eval.Output

	// Text is every round's output rendered by FormatOutput right after the
	// round committed, while retracted identities can still be described.
	Text string
}

// Run loads the script's plan and applies its rounds in order. It stops at
// the first round that fails.
func Run(ctx context.Context, s *Script, opts ...eval.Option) (*Transcript, error) {
	p, err := LoadPlan(s.Plan)
	if err != nil {
		return nil, err
	}
	e, err := eval.New(p, opts...)
	if err != nil {
		return nil, err
	}

	tr := &Transcript{Engine: e}
	var sb strings.Builder
	for i, r := range s.Rounds {
		deltas, err := r.Deltas()
		if err != nil {
			return nil, fmt.Errorf("rounds[%d]: %w", i, err)
		}
		out, err := e.Round(ctx, deltas)
		if err != nil {
			return tr, fmt.Errorf("rounds[%d]: %w", i, err)
		}
		tr.Outputs = append(tr.Outputs, out)
		sb.WriteString(FormatOutput(out, e.Describe))
	}
	tr.Text = sb.String()
	return tr, nil
}
