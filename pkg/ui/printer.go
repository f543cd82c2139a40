package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	"github.com/Hierosoft/hierosoft/pkg/diff"
	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/types"
)

// Printer writes human or JSON output for one command.
type Printer struct {
	w      io.Writer
	format Format
	styles Styles
}

// NewPrinter resolves format for w and the ui.color mode.
func NewPrinter(w io.Writer, format Format, color string) *Printer {
	format = Resolve(format, w, color)
	return &Printer{
		w:      w,
		format: format,
		styles: NewStyles(w, format, color == ColorAlways),
	}
}

func (p *Printer) Format() Format  { return p.format }
func (p *Printer) Writer() io.Writer { return p.w }

// Styled reports whether output carries colors and live widgets.
func (p *Printer) Styled() bool { return p.format == FormatTerminal }

// Decision renders one plan line: mode, path, reason.
func (p *Printer) Decision(d types.EntryDecision) string {
	rel := d.Rel
	if rel == "" {
		rel = "."
	}
	if d.Kind == types.KindDir {
		rel += "/"
	}
	line := p.styles.Mode(d.Mode).Render(string(d.Mode)) + p.styles.Path.Render(rel)
	if d.Reason != "" {
		line += " " + p.styles.Muted.Render("("+d.Reason+")")
	}
	if d.Warning != "" {
		line += " " + p.styles.Warning.Render(d.Warning)
	}
	if d.Err != nil {
		line += " " + p.styles.Error.Render(d.Err.Error())
	}
	return line
}

// Plan prints the visible decisions. Recurse lines are shown only when
// verbose is set.
func (p *Printer) Plan(plan types.Plan, verbose bool) {
	if p.format == FormatJSON {
		p.JSON(plan.Visible())
		return
	}
	for _, d := range plan.Visible() {
		if d.Mode == types.ModeRecurse && !verbose {
			continue
		}
		fmt.Fprintln(p.w, p.Decision(d))
	}
}

// Totals prints the planned work of a simulate pass.
func (p *Printer) Totals(st *types.RunState) {
	if p.format == FormatJSON || st == nil {
		return
	}
	fmt.Fprintln(p.w, p.styles.Title.Render(fmt.Sprintf(
		"%d to copy (%s), %d to delete (%s), %d unchanged",
		st.FilesPlanned, FormatBytes(st.BytesPlanned),
		st.DeleteFilesPlanned, FormatBytes(st.DeletesPlanned),
		st.FilesMatched)))
}

// Issues prints the findings a user is asked to confirm.
func (p *Printer) Issues(issues []types.Issue) {
	for _, is := range issues {
		msg := is.Message
		if is.Rel != "" {
			msg = is.Rel + ": " + msg
		}
		p.Warn(msg)
	}
}

func (p *Printer) Warn(msg string) {
	if p.Styled() {
		fmt.Fprint(p.w, pterm.Warning.Sprintln(msg))
		return
	}
	fmt.Fprintln(p.w, "warning: "+msg)
}

func (p *Printer) Success(msg string) {
	if p.Styled() {
		fmt.Fprint(p.w, pterm.Success.Sprintln(msg))
		return
	}
	fmt.Fprintln(p.w, msg)
}

// Error prints err. Coded errors already carry their code in the text;
// anything else is shown as UNKNOWN.
func (p *Printer) Error(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	if errors.GetErrorCode(err) == errors.ErrUnknown {
		msg = fmt.Sprintf("[%s] %s", errors.ErrUnknown, msg)
	}
	if p.Styled() {
		fmt.Fprint(p.w, pterm.Error.Sprintln(msg))
		return
	}
	fmt.Fprintln(p.w, "error: "+msg)
}

// Result prints the outcome of an install.
func (p *Printer) Result(res *types.Result) {
	if p.format == FormatJSON {
		p.JSON(struct {
			*types.Result
			Error string `json:"error,omitempty"`
		}{res, errString(res.Err)})
		return
	}
	for _, w := range res.Warnings {
		p.Warn(w)
	}
	switch {
	case res.Final == types.StatusDeclined:
		fmt.Fprintln(p.w, p.styles.Muted.Render("install declined, nothing was changed"))
	case res.Err != nil:
		p.Error(res.Err)
		if res.UndoScriptPath != "" {
			fmt.Fprintln(p.w, "roll back with: sh "+res.UndoScriptPath)
		}
	default:
		p.Success(fmt.Sprintf("installed %d files (%s), removed %d (%s), %d unchanged in %s",
			res.Commit.FilesAdded, FormatBytes(res.Commit.BytesDone),
			res.Commit.DeleteFilesDone, FormatBytes(res.Commit.DeletesDone),
			res.Commit.FilesMatched, res.Duration.Round(1e6)))
		if res.UndoScriptPath != "" {
			fmt.Fprintln(p.w, p.styles.Muted.Render("uninstall script: "+res.UndoScriptPath))
		}
	}
}

// Diffs prints the previews of overwritten files.
func (p *Printer) Diffs(diffs []diff.FileDiff) {
	if p.format == FormatJSON {
		p.JSON(diffs)
		return
	}
	for _, d := range diffs {
		switch {
		case d.Binary:
			fmt.Fprintln(p.w, p.styles.Muted.Render("binary file "+d.Rel+" differs"))
		case d.TooLarge:
			fmt.Fprintln(p.w, p.styles.Muted.Render("file "+d.Rel+" is too large to diff"))
		default:
			p.unified(d.Unified)
		}
	}
}

func (p *Printer) unified(text string) {
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		body := strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			body = p.styles.Title.Render(body)
		case strings.HasPrefix(line, "@@"):
			body = p.styles.Info.Render(body)
		case strings.HasPrefix(line, "+"):
			body = p.styles.Success.UnsetBold().Render(body)
		case strings.HasPrefix(line, "-"):
			body = p.styles.Error.UnsetBold().Render(body)
		}
		fmt.Fprintln(p.w, body)
	}
}

// JSON writes v indented.
func (p *Printer) JSON(v interface{}) {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
