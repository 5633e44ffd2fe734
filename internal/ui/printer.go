package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Printer renders styled CLI output to a writer. Commands should go through
// it rather than printing directly so width handling stays in one place.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a Printer writing to w, or os.Stdout when w is nil.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the content width used by this printer.
func (p *Printer) Width() int {
	return p.width
}

// Print writes content to the output.
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline.
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line.
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command banner box with the operation title and its
// parameters.
func (p *Printer) PrintHeader(title string, params map[string]string) {
	var lines []string
	lines = append(lines, TitleStyle.Render(strings.ToUpper(title)))

	for _, key := range sortedKeys(params) {
		lines = append(lines,
			KeyStyle.PaddingLeft(2).Render(key+":")+ValueStyle.Render(params[key]))
	}

	p.Println(HeaderBorderStyle(p.width).Render(strings.Join(lines, "\n")))
	p.Newline()
}

// PrintDetails prints aligned key/value rows.
func (p *Printer) PrintDetails(details map[string]string) {
	for _, key := range sortedKeys(details) {
		p.Println("  " + KeyStyle.Render(key+":") + ValueStyle.Render(details[key]))
	}
}

// PrintSuccess prints a success result box.
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	var lines []string
	lines = append(lines, SuccessTitleStyle.Render(SuccessMarker+" "+title))

	for _, key := range sortedKeys(details) {
		lines = append(lines, KeyStyle.Render(key+":")+ValueStyle.Render(details[key]))
	}

	p.Println(SuccessBoxStyle(p.width).Render(strings.Join(lines, "\n")))
}

// PrintError prints an error result box.
func (p *Printer) PrintError(title string, err error) {
	content := ErrorTitleStyle.Render(FailureMarker+" "+title) + "\n" +
		ErrorMessageStyle.Render(err.Error())
	p.Println(ErrorBoxStyle(p.width).Render(content))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
