// Package highlight applies ANSI terminal styling to CQL text and cluster
// topology tables, used by cluster.ShowClusterInformation.
package highlight

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

var (
	lexer     chroma.Lexer
	formatter chroma.Formatter
	style     *chroma.Style
)

func init() {
	lexer = lexers.Get("sql")
	formatter = formatters.Get("terminal256")
	style = styles.Get("monokai")
}

// CQL returns the input with ANSI terminal syntax highlighting applied.
// CQL's lexical grammar is a near-subset of SQL, so the "sql" chroma lexer
// is reused rather than shipping a bespoke one. On error or empty input,
// the original string is returned unchanged.
func CQL(s string) string {
	if s == "" {
		return s
	}

	iterator, err := lexer.Tokenise(nil, s)
	if err != nil {
		return s
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return s
	}

	return strings.TrimRight(buf.String(), "\n")
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	upStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	downStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// NodeRow is one row of a cluster topology table.
type NodeRow struct {
	Address    string
	Datacenter string
	Rack       string
	Status     string // "UP" or "DOWN"
	Tokens     int
}

// padRight pads s to width, measuring with lipgloss.Width rather than len
// so ANSI escape sequences already applied to s (e.g. a style.Render
// result) don't count as visible columns and throw off alignment.
func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// NodeTable renders a cluster's known nodes as an ANSI-styled table for
// ShowClusterInformation. Status is bolded green for UP and red for DOWN;
// the datacenter/rack columns are dimmed. Each field is styled first and
// padded second via padRight, so alignment survives the styling.
func NodeTable(rows []NodeRow) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-22s %-12s %-8s %-6s %s", "ADDRESS", "DATACENTER", "RACK", "STATUS", "TOKENS")))
	b.WriteByte('\n')
	for _, r := range rows {
		status := r.Status
		switch strings.ToUpper(r.Status) {
		case "UP":
			status = upStyle.Render(r.Status)
		case "DOWN":
			status = downStyle.Render(r.Status)
		}
		line := fmt.Sprintf("%s %s %s %s %d",
			padRight(r.Address, 22),
			padRight(dimStyle.Render(r.Datacenter), 12),
			padRight(dimStyle.Render(r.Rack), 8),
			padRight(status, 6),
			r.Tokens,
		)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
