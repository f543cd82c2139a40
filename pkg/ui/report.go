package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/Hierosoft/hierosoft/pkg/transaction"
)

// StatusMarkdown lists installed packages as a markdown table.
func StatusMarkdown(records []*transaction.Record) string {
	var b strings.Builder
	b.WriteString("# Installed packages\n\n")
	if len(records) == 0 {
		b.WriteString("Nothing is installed.\n")
		return b.String()
	}
	b.WriteString("| Package | Version | Size | Installed | Destination |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, r := range records {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | `%s` |\n",
			cell(packageLabel(r)), cell(orDash(r.Version)), FormatBytes(r.Size),
			r.InstallDate.Local().Format(time.DateTime), r.DestRoot)
	}
	return b.String()
}

// RecordMarkdown describes one install record.
func RecordMarkdown(r *transaction.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", packageLabel(r))
	fmt.Fprintf(&b, "- **Status:** %s\n", r.Status)
	fmt.Fprintf(&b, "- **Version:** %s\n", orDash(r.Version))
	if r.Organization != "" {
		fmt.Fprintf(&b, "- **Organization:** %s\n", r.Organization)
	}
	fmt.Fprintf(&b, "- **Installed:** %s\n", r.InstallDate.Local().Format(time.RFC1123))
	fmt.Fprintf(&b, "- **Size:** %s\n", FormatBytes(r.Size))
	fmt.Fprintf(&b, "- **Install id:** `%s`\n", r.InstallID)
	fmt.Fprintf(&b, "- **Source:** `%s`\n", r.SourceRoot)
	fmt.Fprintf(&b, "- **Destination:** `%s`\n", r.DestRoot)
	if r.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", r.Error)
	}

	list := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n", title)
		for _, it := range items {
			fmt.Fprintf(&b, "- `%s`\n", it)
		}
	}
	list("Kept", r.Keeps)
	list("Replaced", r.Replaces)

	b.WriteString("\n## Files\n\n")
	fmt.Fprintf(&b, "- uninstall script: `%s`\n", r.UninstallScript)
	if r.RedoLog != "" {
		fmt.Fprintf(&b, "- redo log: `%s`\n", r.RedoLog)
	}
	if r.Archive != "" {
		fmt.Fprintf(&b, "- backup archive: `%s`\n", r.Archive)
	}
	return b.String()
}

// Markdown prints md through glamour on a terminal and verbatim
// otherwise.
func (p *Printer) Markdown(md string) {
	if !p.Styled() {
		fmt.Fprint(p.w, md)
		return
	}
	fmt.Fprint(p.w, RenderMarkdown(md, 0))
}

// RenderMarkdown renders md for the terminal, falling back to the plain
// text when glamour cannot.
func RenderMarkdown(md string, width int) string {
	options := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		options = append(options, glamour.WithWordWrap(width))
	}
	renderer, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

func packageLabel(r *transaction.Record) string {
	if r.Name != "" && r.Name != r.LUID {
		return fmt.Sprintf("%s (%s)", r.Name, r.LUID)
	}
	return r.LUID
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
