package render

import (
	"fmt"
	"io"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// ProxyListRenderer renders the registered proxies of a chain as a table
type ProxyListRenderer struct {
	out io.Writer
}

// NewProxyListRenderer creates a new proxy list renderer
func NewProxyListRenderer(out io.Writer) *ProxyListRenderer {
	return &ProxyListRenderer{out: out}
}

// Render renders the proxy list
func (r *ProxyListRenderer) Render(result *usecase.ProxyListResult) error {
	if len(result.Proxies) == 0 {
		fmt.Fprintln(r.out, "No proxies found")
		return nil
	}

	t := newTable(r.out)
	t.AppendHeader(table.Row{"LABEL", "CONTRACT", "PROXY", "IMPLEMENTATION", "ADMIN", "VERSIONS"})
	for _, p := range result.Proxies {
		label := p.Label
		if label == "" {
			label = faintStyle.Sprint("-")
		}
		t.AppendRow(table.Row{
			labelStyle.Sprint(label),
			contractStyle.Sprint(contractName(p.ContractRef)),
			addressStyle.Sprint(p.Address.Hex()),
			p.Implementation.Hex(),
			p.Admin.Hex(),
			result.Summary.Versions[p.Address],
		})
	}
	t.Render()

	fmt.Fprintf(r.out, "\nTotal proxies: %d", result.Summary.Total)
	if len(result.Summary.ByAdmin) > 1 {
		fmt.Fprintf(r.out, " (%d admins)", len(result.Summary.ByAdmin))
	}
	fmt.Fprintln(r.out)
	return nil
}

// ProxyRenderer renders one proxy with its version and admin history
type ProxyRenderer struct {
	out io.Writer

	// HistoryOnly skips the header and on-chain sections
	HistoryOnly bool
}

// NewProxyRenderer creates a new proxy renderer
func NewProxyRenderer(out io.Writer) *ProxyRenderer {
	return &ProxyRenderer{out: out}
}

// Render renders the proxy details
func (r *ProxyRenderer) Render(d *usecase.ProxyDetails) error {
	p := d.Proxy
	if !r.HistoryOnly {
		headerStyle.Fprintf(r.out, "Proxy: %s\n", p.DisplayName())
		fmt.Fprintln(r.out)
		field(r.out, "Address", addressStyle.Sprint(p.Address.Hex()))
		field(r.out, "Chain", p.ChainID)
		if p.Label != "" {
			field(r.out, "Label", labelStyle.Sprint(p.Label))
		}
		field(r.out, "Contract", contractStyle.Sprint(p.ContractRef))
		field(r.out, "Implementation", p.Implementation.Hex())
		if d.Current != nil {
			field(r.out, "Layout Hash", d.Current.LayoutHash.Hex())
			field(r.out, "Storage Slots", len(d.Current.Layout.Entries))
		}
		field(r.out, "Admin", p.Admin.Hex())
		field(r.out, "ProxyAdmin", formatAddress(p.AdminContract))
		field(r.out, "Created", formatTime(p.CreatedAt))

		if d.OnChain != nil {
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, sectionStyle.Sprint("On-chain:"))
			field(r.out, "Implementation", matchMark(d.OnChain.Implementation.Hex(), d.OnChain.Implementation == p.Implementation))
			field(r.out, "ProxyAdmin", matchMark(d.OnChain.AdminContract.Hex(), p.AdminContract == (common.Address{}) || p.AdminContract == d.OnChain.AdminContract))
			field(r.out, "Owner", matchMark(d.OnChain.Owner.Hex(), d.OnChain.Owner == p.Admin))
			if d.InSync() {
				fmt.Fprintln(r.out, "  "+okStyle.Sprint("registry is in sync"))
			} else {
				fmt.Fprintln(r.out, "  "+FormatWarning("registry is out of sync, run `treb-proxy reconcile`"))
			}
		}
		fmt.Fprintln(r.out)
	}

	r.renderVersions(d.Versions)
	if len(d.Admins) > 0 {
		fmt.Fprintln(r.out)
		r.renderAdmins(d.Admins)
	}
	return nil
}

func (r *ProxyRenderer) renderVersions(versions []models.VersionRecord) {
	fmt.Fprintln(r.out, sectionStyle.Sprint("Version History:"))
	sorted := append([]models.VersionRecord(nil), versions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	t := newTable(r.out)
	t.AppendHeader(table.Row{"#", "IMPLEMENTATION", "LAYOUT", "INITIATOR", "TX", "APPLIED"})
	latest := lo.MaxBy(sorted, func(a, b models.VersionRecord) bool { return a.Sequence > b.Sequence })
	for _, v := range sorted {
		seq := fmt.Sprintf("%d", v.Sequence)
		if v.IsGenesis() {
			seq += " " + faintStyle.Sprint("genesis")
		}
		impl := v.ImplementationAddress.Hex()
		if v.Sequence == latest.Sequence {
			impl = okStyle.Sprint(impl + " (current)")
		}
		t.AppendRow(table.Row{
			seq,
			impl,
			shortHash(v.LayoutHash.Hex()),
			v.Initiator.Hex(),
			formatHash(v.TxHash),
			formatTime(v.AppliedAt),
		})
	}
	t.Render()
}

func (r *ProxyRenderer) renderAdmins(admins []models.AdminRecord) {
	fmt.Fprintln(r.out, sectionStyle.Sprint("Admin History:"))
	t := newTable(r.out)
	t.AppendHeader(table.Row{"#", "FROM", "TO", "INITIATOR", "TX", "APPLIED"})
	for _, a := range admins {
		t.AppendRow(table.Row{
			a.Sequence,
			formatAddress(a.PreviousAdmin),
			a.NewAdmin.Hex(),
			a.Initiator.Hex(),
			formatHash(a.TxHash),
			formatTime(a.AppliedAt),
		})
	}
	t.Render()
}

func matchMark(value string, ok bool) string {
	if ok {
		return value + " " + okStyle.Sprint("✓")
	}
	return value + " " + badStyle.Sprint("✗")
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:10] + "…"
}

var (
	_ Renderer[*usecase.ProxyListResult] = (*ProxyListRenderer)(nil)
	_ Renderer[*usecase.ProxyDetails]    = (*ProxyRenderer)(nil)
)
