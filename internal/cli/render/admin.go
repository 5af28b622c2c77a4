package render

import (
	"fmt"
	"io"

	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// TransferAdminRenderer renders an admin transfer
type TransferAdminRenderer struct {
	out io.Writer
}

// NewTransferAdminRenderer creates a new admin transfer renderer
func NewTransferAdminRenderer(out io.Writer) *TransferAdminRenderer {
	return &TransferAdminRenderer{out: out}
}

// Render renders the admin transfer result
func (r *TransferAdminRenderer) Render(result *usecase.TransferAdminResult) error {
	if len(result.Records) == 0 {
		return nil
	}
	newAdmin := result.Records[0].NewAdmin
	fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("ProxyAdmin %s now owned by %s", result.AdminContract.Hex(), newAdmin.Hex())))
	field(r.out, "Transaction", formatHash(result.TxHash))
	fmt.Fprintf(r.out, "  %s\n", sectionStyle.Sprintf("Proxies (%d):", len(result.Affected)))
	for _, p := range result.Affected {
		fmt.Fprintf(r.out, "    %s %s\n", labelStyle.Sprint(p.DisplayName()), p.Address.Hex())
	}
	return nil
}

// ReconcileRenderer renders the outcome of reconciling a proxy with the chain
type ReconcileRenderer struct {
	out io.Writer
}

// NewReconcileRenderer creates a new reconcile renderer
func NewReconcileRenderer(out io.Writer) *ReconcileRenderer {
	return &ReconcileRenderer{out: out}
}

// Render renders the reconcile result
func (r *ReconcileRenderer) Render(result *usecase.ReconcileProxyResult) error {
	name := result.Proxy.DisplayName()
	if result.Report != nil && !result.Report.Compatible {
		renderReport(r.out, *result.Report)
		fmt.Fprintln(r.out)
	}

	if result.InSync {
		fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("%s is in sync with the chain", name)))
		return nil
	}
	if result.Version != nil {
		fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("Recorded out-of-band upgrade of %s to %s (version %d)",
			name, result.Version.ImplementationAddress.Hex(), result.Version.Sequence)))
	}
	if result.AdminChange != nil {
		fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("Recorded admin change of %s: %s → %s",
			name, result.AdminChange.PreviousAdmin.Hex(), result.AdminChange.NewAdmin.Hex())))
	}
	if result.AdminContractMismatch && result.OnChain != nil {
		fmt.Fprintln(r.out, FormatWarning(fmt.Sprintf("admin slot of %s holds %s, registry has ProxyAdmin %s",
			name, result.OnChain.AdminContract.Hex(), result.Proxy.AdminContract.Hex())))
	}
	return nil
}

var (
	_ Renderer[*usecase.TransferAdminResult]  = (*TransferAdminRenderer)(nil)
	_ Renderer[*usecase.ReconcileProxyResult] = (*ReconcileRenderer)(nil)
)
