package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// DeployRenderer renders a proxy deployment
type DeployRenderer struct {
	out io.Writer
}

// NewDeployRenderer creates a new deploy renderer
func NewDeployRenderer(out io.Writer) *DeployRenderer {
	return &DeployRenderer{out: out}
}

// Render renders the deploy result
func (r *DeployRenderer) Render(result *usecase.DeployProxyResult) error {
	req := result.Request
	if req == nil {
		return nil
	}

	if req.State != models.StateConfirmed || req.Proxy == nil {
		if req.Failure != nil {
			fmt.Fprintln(r.out, badStyle.Sprintf("❌ Deployment of %s failed during %s", req.ContractRef, StateName(req.Failure.Stage)))
		}
		return nil
	}

	p := req.Proxy
	fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("Deployed %s", p.DisplayName())))
	field(r.out, "Proxy", addressStyle.Sprint(p.Address.Hex()))
	if req.Implementation != nil {
		field(r.out, "Implementation", fmt.Sprintf("%s (%s)", req.Implementation.Address.Hex(), req.Implementation.ContractRef))
		field(r.out, "Storage Slots", len(req.Implementation.Layout.Entries))
	}
	admin := formatAddress(p.AdminContract)
	if result.AdminDeployed {
		admin += " " + faintStyle.Sprint("(new)")
	}
	field(r.out, "ProxyAdmin", admin)
	field(r.out, "Admin", p.Admin.Hex())
	if req.Record != nil {
		field(r.out, "Transaction", formatHash(req.Record.TxHash))
	}
	return nil
}

// ManifestRenderer renders the outcome of applying a manifest
type ManifestRenderer struct {
	out io.Writer
}

// NewManifestRenderer creates a new manifest renderer
func NewManifestRenderer(out io.Writer) *ManifestRenderer {
	return &ManifestRenderer{out: out}
}

// Render renders the manifest result
func (r *ManifestRenderer) Render(result *usecase.ApplyManifestResult) error {
	t := newTable(r.out)
	t.AppendHeader(table.Row{"LABEL", "CONTRACT", "PROXY", "STATUS"})

	deployed, skipped := 0, 0
	for _, e := range result.Entries {
		var proxy, status string
		switch {
		case e.Skipped && e.Existing != nil:
			skipped++
			proxy = e.Existing.Address.Hex()
			status = faintStyle.Sprint("exists")
		case e.Deploy != nil && e.Deploy.Request != nil && e.Deploy.Request.Proxy != nil:
			deployed++
			proxy = e.Deploy.Request.Proxy.Address.Hex()
			status = okStyle.Sprint("deployed")
		case e.Deploy != nil && e.Deploy.Request != nil && e.Deploy.Request.Failure != nil:
			proxy = faintStyle.Sprint("-")
			status = badStyle.Sprint("failed: " + e.Deploy.Request.Failure.Message)
		default:
			proxy = faintStyle.Sprint("-")
			status = faintStyle.Sprint("pending")
		}
		t.AppendRow(table.Row{labelStyle.Sprint(e.Entry.Label), contractStyle.Sprint(e.Entry.Contract), proxy, status})
	}
	t.Render()

	fmt.Fprintf(r.out, "\n%d deployed, %d already registered\n", deployed, skipped)
	return nil
}

var (
	_ Renderer[*usecase.DeployProxyResult]   = (*DeployRenderer)(nil)
	_ Renderer[*usecase.ApplyManifestResult] = (*ManifestRenderer)(nil)
)
