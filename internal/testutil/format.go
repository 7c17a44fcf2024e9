package testutil

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jjedMoriAnktah/Eve/internal/eval"
	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// FormatOutput renders one round's output:
//
//	round 2: inputs=1 removed=1 added=1
//	  -1 person-info{person=#A} info "not cool"
//	  +1 person-info{person=#A} info "cool"
//	  ! cool EXPR_ERROR: ...
//
// Removals come before additions and each section is sorted by line.
// describe renders entity identifiers; derived ones should come out as their
// identity key.
func FormatOutput(out *eval.Output, describe func(ir.EntityID) string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "round %d: inputs=%d removed=%d added=%d\n",
		out.Round, len(out.Inputs), len(out.Removals), len(out.Additions))

	for _, section := range [][]ir.Delta{out.Removals, out.Additions} {
		lines := make([]string, len(section))
		for i, d := range section {
			lines[i] = FormatDelta(d, describe)
		}
		slices.Sort(lines)
		for _, line := range lines {
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	for _, d := range out.Diagnostics {
		fmt.Fprintf(&sb, "  ! %s %s: %s\n", d.Block, d.Code, d.Message)
	}
	return sb.String()
}

// FormatDelta renders a delta as "<count> <entity> <attribute> <value>".
func FormatDelta(d ir.Delta, describe func(ir.EntityID) string) string {
	value := d.Triple.Value.String()
	if ref, ok := d.Triple.Value.(ir.IRRef); ok {
		value = "#" + describe(ref.Entity())
	}
	return fmt.Sprintf("%+d %s %s %s", d.Count, describe(d.Triple.Entity), d.Triple.Attribute, value)
}
