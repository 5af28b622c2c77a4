package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/layout"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StateName turns a request state like LAYOUT_EXTRACTED into "Layout Extracted"
func StateName(state models.RequestState) string {
	words := strings.ReplaceAll(strings.ToLower(string(state)), "_", " ")
	return cases.Title(language.English).String(words)
}

// UpgradeRenderer renders the outcome of an upgrade request
type UpgradeRenderer struct {
	out io.Writer
}

// NewUpgradeRenderer creates a new upgrade renderer
func NewUpgradeRenderer(out io.Writer) *UpgradeRenderer {
	return &UpgradeRenderer{out: out}
}

// Render renders the upgrade result
func (r *UpgradeRenderer) Render(result *usecase.UpgradeProxyResult) error {
	req := result.Request
	if req == nil {
		return nil
	}
	name := req.Proxy.Hex()
	if result.Proxy != nil {
		name = result.Proxy.DisplayName()
	}

	if result.Report != nil && (len(result.Report.Violations) > 0 || len(result.Report.Appended) > 0 || len(result.Report.Reserved) > 0) {
		renderReport(r.out, *result.Report)
		fmt.Fprintln(r.out)
	}

	switch {
	case req.NoOp:
		fmt.Fprintln(r.out, FormatWarning(fmt.Sprintf("%s already runs %s, nothing to do", name, req.ContractRef)))
	case req.State == models.StateConfirmed:
		fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("Upgraded %s to %s", name, req.ContractRef)))
		field(r.out, "Proxy", req.Proxy.Hex())
		field(r.out, "Previous", req.Expected.Hex())
		field(r.out, "Implementation", req.Candidate.Hex())
		field(r.out, "Transaction", formatHash(req.TxHash))
		if req.Record != nil {
			field(r.out, "Version", req.Record.Sequence)
		}
	case req.State == models.StateFailed && req.Failure != nil:
		fmt.Fprintln(r.out, badStyle.Sprintf("❌ Upgrade of %s failed during %s", name, StateName(req.Failure.Stage)))
		if req.TxHash != (common.Hash{}) {
			field(r.out, "Transaction", req.TxHash.Hex())
		}
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, faintStyle.Sprintf("request %s: %s", req.ID, stateTrail(req.History)))
	return nil
}

func stateTrail(history []models.Transition) string {
	names := make([]string, len(history))
	for i, t := range history {
		names[i] = StateName(t.State)
	}
	return strings.Join(names, " → ")
}

// CheckRenderer renders a dry-run compatibility check
type CheckRenderer struct {
	out io.Writer
}

// NewCheckRenderer creates a new check renderer
func NewCheckRenderer(out io.Writer) *CheckRenderer {
	return &CheckRenderer{out: out}
}

// Render renders the check result
func (r *CheckRenderer) Render(result *usecase.CheckUpgradeResult) error {
	headerStyle.Fprintf(r.out, "Checking %s → %s\n", result.Proxy.DisplayName(), result.CandidateRef)
	fmt.Fprintln(r.out)
	field(r.out, "Current", fmt.Sprintf("%s (%s)", result.Current.ContractRef, result.Current.Address.Hex()))
	field(r.out, "Current Layout", fmt.Sprintf("%d slots", len(result.Current.Layout.Entries)))
	field(r.out, "Candidate Layout", fmt.Sprintf("%d slots", len(result.CandidateLayout.Entries)))
	fmt.Fprintln(r.out)

	if result.NoOp {
		fmt.Fprintln(r.out, FormatWarning("candidate is already the current implementation"))
		return nil
	}

	renderReport(r.out, result.Report)
	fmt.Fprintln(r.out)
	if result.Report.Compatible {
		fmt.Fprintln(r.out, FormatSuccess("Storage layout is compatible"))
	} else {
		fmt.Fprintln(r.out, badStyle.Sprintf("❌ Storage layout is incompatible (%d violations)", len(result.Report.Violations)))
	}
	return nil
}

// renderReport prints the violations, reserved and appended variables of a
// compatibility report
func renderReport(out io.Writer, report layout.Report) {
	if len(report.Violations) > 0 {
		fmt.Fprintln(out, sectionStyle.Sprint("Violations:"))
		t := newTable(out)
		t.AppendHeader(table.Row{"KIND", "SLOT", "OFFSET", "VARIABLE", "DETAIL"})
		for _, v := range report.Violations {
			t.AppendRow(table.Row{badStyle.Sprint(violationName(v.Kind)), v.Slot, v.Offset, v.Label, v.Detail})
		}
		t.Render()
	}
	if len(report.Reserved) > 0 {
		fmt.Fprintln(out, sectionStyle.Sprint("Reserved:"))
		for _, s := range report.Reserved {
			fmt.Fprintf(out, "  %s %s\n", warnStyle.Sprint("~"), s)
		}
	}
	if len(report.Appended) > 0 {
		fmt.Fprintln(out, sectionStyle.Sprint("Appended:"))
		for _, s := range report.Appended {
			fmt.Fprintf(out, "  %s %s\n", okStyle.Sprint("+"), s)
		}
	}
}

// violationName splits SlotWidthMismatch into "Slot width mismatch"
func violationName(kind domain.ViolationKind) string {
	var b strings.Builder
	for i, c := range string(kind) {
		if i > 0 && c >= 'A' && c <= 'Z' {
			b.WriteByte(' ')
			c += 'a' - 'A'
		}
		b.WriteRune(c)
	}
	return b.String()
}

var (
	_ Renderer[*usecase.UpgradeProxyResult] = (*UpgradeRenderer)(nil)
	_ Renderer[*usecase.CheckUpgradeResult] = (*CheckRenderer)(nil)
)
