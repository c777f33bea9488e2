// Package report renders the final result set of one input file, either as
// a paginated plain text listing or as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
)

// Formats.
const (
	FormatText = "txt"
	FormatCSV  = "csv"
)

// DefaultTitle heads every report.
const DefaultTitle = "VIES VAT CONTROLLER"

// PageSize is the number of result rows per text page.
const PageSize = 40

// maxCell bounds free text columns in the text format.
const maxCell = 40

// Columns of the result table.
var Columns = []string{
	"line_nr",
	"in_ccode",
	"in_vatnr",
	"in_pdesc",
	"vies_ccode",
	"vies_vatnr",
	"vies_status",
	"vies_err_msg",
}

// CoverField is one labeled value on the cover.
type CoverField struct {
	Label string
	Value string
}

// Report is everything a writer needs; Results are already in final order.
type Report struct {
	Title       string
	Cover       []CoverField
	Results     vat.ResultSet
	GeneratedAt time.Time
}

// Write renders r in format.
func Write(w io.Writer, format string, r Report) error {
	switch strings.ToLower(format) {
	case FormatText:
		return WriteText(w, r)
	case FormatCSV:
		return WriteCSV(w, r)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// FileName returns the report name for an input file: the input base name
// with the format extension.
func FileName(sourceFile, format string) string {
	base := filepath.Base(sourceFile)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "." + strings.ToLower(format)
}

func row(res vat.LookupResult) []string {
	return []string{
		strconv.Itoa(res.Record.LineNumber),
		string(res.Record.CountryCode),
		res.Record.Identifier,
		res.Record.Description,
		res.RemoteCountryCode,
		res.RemoteIdentifier,
		string(res.Status),
		res.ErrorMessage,
	}
}

// WriteCSV writes a header line and one ';' separated line per result.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, res := range r.Results {
		if err := cw.Write(row(res)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteText writes a cover block followed by pages of PageSize rows, each
// page repeating the column header and ending with "Page n of m".
func WriteText(w io.Writer, r Report) error {
	title := r.Title
	if title == "" {
		title = DefaultTitle
	}
	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	pages := (len(r.Results) + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}

	var b strings.Builder
	rule := strings.Repeat("=", 100)
	fmt.Fprintf(&b, "%s\n%s\n%s\n\n", rule, center(title, len(rule)), rule)

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, f := range r.Cover {
		fmt.Fprintf(tw, "%s:\t%s\n", f.Label, f.Value)
	}
	fmt.Fprintf(tw, "Generation date:\t%s\n", generated.Format("02/01/2006 15:04:05"))
	if err := tw.Flush(); err != nil {
		return err
	}

	for p := 0; p < pages; p++ {
		fmt.Fprintf(&b, "\n%s\n", strings.Repeat("-", 100))

		tw = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(Columns, "\t"))

		lo := p * PageSize
		hi := min(lo+PageSize, len(r.Results))
		for _, res := range r.Results[lo:hi] {
			cells := row(res)
			for i := range cells {
				cells[i] = clip(cells[i], maxCell)
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(&b, "%100s\n", fmt.Sprintf("Page %d of %d", p+1, pages))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func center(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return strings.Repeat(" ", (width-n)/2) + s
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}
