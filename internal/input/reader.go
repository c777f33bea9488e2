// Package input reads partner lists: ';' delimited CSV files with a header
// line followed by description;country_code;vat_number rows.
package input

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
	"github.com/rs/zerolog"
)

// Delimiter separates the fields of an input row.
const Delimiter = ';'

// ErrNoHeader is returned for an empty input file.
var ErrNoHeader = errors.New("input has no header line")

// Result is the outcome of reading one input file.
type Result struct {
	SourceFile string
	Records    vat.Batch

	Accepted int
	Rejected int

	// Problems holds one *vat.ShapeError, *vat.FieldError or
	// *csv.ParseError per rejected row.
	Problems []error

	// Outcomes holds one entry per data row, in line order.
	Outcomes []vat.ValidationOutcome
}

func (r *Result) add(o vat.ValidationOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Accepted {
		r.Accepted++
		r.Records = append(r.Records, o.Record)
		return
	}
	r.Rejected++
	r.Problems = append(r.Problems, o.Err)
}

// ReadFile reads the partner list at path. Records carry the base name of
// path as SourceFile.
func ReadFile(path string, logger zerolog.Logger) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	return Read(f, filepath.Base(path), logger)
}

// Read validates every data row of r. A bad row is counted and logged but
// never stops the read; only I/O failures and a missing header are
// returned as errors. Data rows are numbered from 1, the header excluded.
// A blank line after the header is a row with no fields.
func Read(r io.Reader, sourceFile string, logger zerolog.Logger) (Result, error) {
	res := Result{SourceFile: sourceFile}

	lc := &lineCounter{r: r}
	cr := csv.NewReader(lc)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	headerLine, lastLine := 1, 1
	if header, err := cr.Read(); err != nil {
		if err == io.EOF {
			return res, ErrNoHeader
		}
		var pe *csv.ParseError
		if !errors.As(err, &pe) {
			return res, fmt.Errorf("read header: %w", err)
		}
		headerLine, lastLine = pe.StartLine, pe.Line
	} else {
		headerLine, _ = cr.FieldPos(0)
		lastLine = endLine(cr, header)
	}

	accept := func(o vat.ValidationOutcome) {
		res.add(o)
		if !o.Accepted {
			logger.Warn().
				Str("file", sourceFile).
				Int("line", o.Record.LineNumber).
				Str("reason", o.RejectionReason).
				Msg("Rejected input row")
		}
	}
	// csv.Reader drops empty lines; they are rejected here instead.
	blanks := func(upTo int) {
		for physical := lastLine + 1; physical < upTo; physical++ {
			line := physical - headerLine
			accept(vat.Reject(sourceFile, line, &vat.ShapeError{Line: line}))
		}
	}

	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}

		var pe *csv.ParseError
		if err != nil && !errors.As(err, &pe) {
			return res, fmt.Errorf("read %s: %w", sourceFile, err)
		}
		if pe != nil {
			blanks(pe.StartLine)
			accept(vat.Reject(sourceFile, pe.StartLine-headerLine, err))
			lastLine = pe.Line
			continue
		}

		physical, _ := cr.FieldPos(0)
		blanks(physical)
		line := physical - headerLine

		logger.Debug().Str("file", sourceFile).Int("line", line).Msg("Validate line")
		accept(vat.Validate(sourceFile, line, fields))
		lastLine = endLine(cr, fields)
	}
	blanks(lc.lines() + 1)

	logger.Info().
		Str("file", sourceFile).
		Int("accepted", res.Accepted).
		Int("rejected", res.Rejected).
		Msg("Input file read")

	return res, nil
}

// endLine returns the physical line on which the record just read ends.
// Quoted fields may span lines.
func endLine(cr *csv.Reader, fields []string) int {
	last := len(fields) - 1
	line, _ := cr.FieldPos(last)
	return line + strings.Count(fields[last], "\n")
}

// lineCounter counts the physical lines passing through to the csv reader.
type lineCounter struct {
	r        io.Reader
	newlines int
	last     byte
	started  bool
}

func (c *lineCounter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.newlines += bytes.Count(p[:n], []byte{'\n'})
		c.last = p[n-1]
		c.started = true
	}
	return n, err
}

// lines returns the number of lines read so far, counting an unterminated
// last line.
func (c *lineCounter) lines() int {
	if c.started && c.last != '\n' {
		return c.newlines + 1
	}
	return c.newlines
}

// ListSources returns the *.csv files of dir in name order.
func ListSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list source folder: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
