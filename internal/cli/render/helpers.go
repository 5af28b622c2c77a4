package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	labelStyle    = color.New(color.FgMagenta, color.Bold)
	contractStyle = color.New(color.FgYellow)
	addressStyle  = color.New(color.FgWhite)
	faintStyle    = color.New(color.Faint)
	headerStyle   = color.New(color.FgCyan, color.Bold)
	sectionStyle  = color.New(color.Bold, color.FgHiWhite)
	okStyle       = color.New(color.FgGreen)
	badStyle      = color.New(color.FgRed)
	warnStyle     = color.New(color.FgYellow)
)

const timeFormat = "2006-01-02 15:04:05"

// FormatWarning formats a warning message with the warning icon
func FormatWarning(message string) string {
	return warnStyle.Sprintf("⚠️  %s", message)
}

// FormatError formats an error message with the error icon
func FormatError(message string) string {
	// Extract just the error message part (after the last colon if it's an error chain)
	parts := strings.Split(message, ": ")
	msg := parts[len(parts)-1]

	// Capitalize first letter
	if len(msg) > 0 {
		msg = strings.ToUpper(msg[:1]) + msg[1:]
	}

	return badStyle.Sprintf("❌ %s", msg)
}

// FormatSuccess formats a success message with the success icon
func FormatSuccess(message string) string {
	return okStyle.Sprintf("✅ %s", message)
}

// RenderJSON writes v as indented JSON
func RenderJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// contractName strips the source path from an artifact reference
func contractName(ref string) string {
	if idx := strings.LastIndex(ref, ":"); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}

func formatAddress(addr common.Address) string {
	if addr == (common.Address{}) {
		return faintStyle.Sprint("-")
	}
	return addr.Hex()
}

func formatHash(h common.Hash) string {
	if h == (common.Hash{}) {
		return faintStyle.Sprint("-")
	}
	return h.Hex()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return faintStyle.Sprint("-")
	}
	return faintStyle.Sprint(t.Local().Format(timeFormat))
}

// field prints an indented "Key: value" line
func field(out io.Writer, key string, value any) {
	fmt.Fprintf(out, "  %s %v\n", key+":", value)
}

// newTable returns a borderless light table writing to out
func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.Style().Options.SeparateRows = false
	t.Style().Box.PaddingRight = "  "
	return t
}
