package manifest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"manifestflow/internal/fault"
)

// Separators the remote storage can label with a content type.
const (
	Comma = ','
	Tab   = '\t'
)

// ContentType maps a separator to the MIME type used when storing the
// manifest. An unsupported separator yields "".
func ContentType(sep rune) string {
	switch sep {
	case Comma:
		return "text/csv"
	case Tab:
		return "text/tab-separated-values"
	}
	return ""
}

// ParseSeparator accepts a single character or the escape "\t".
func ParseSeparator(s string) (rune, error) {
	switch s {
	case ",":
		return Comma, nil
	case "\t", `\t`, "tab":
		return Tab, nil
	}
	return 0, fault.Newf(fault.Parse, "manifest", "unsupported separator %q", s)
}

// Dataset is a parsed manifest: ordered columns and one typed row per record.
type Dataset struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

func (d *Dataset) Len() int { return len(d.Rows) }

// Parse reads a delimited manifest with a header row. All cells are kept as
// strings; a missing required column or a repeated column name is a parse
// error. A manifest with only a header parses to an empty dataset.
func Parse(r io.Reader, sep rune) (*Dataset, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("manifest: read: %w", err)
	}
	header, more, err := readHeader(raw, sep)
	if err != nil {
		return nil, err
	}
	if !more {
		return FromRecords([][]string{header})
	}
	// The data frame reader renames repeated header names, so they are
	// rejected against the raw header first.
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	df := dataframe.ReadCSV(bytes.NewReader(raw),
		dataframe.WithDelimiter(sep),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return nil, fault.New(fault.Parse, "manifest: read", df.Err)
	}
	return FromRecords(df.Records())
}

// readHeader returns the first record of raw and whether any record follows.
func readHeader(raw []byte, sep rune) ([]string, bool, error) {
	cr := csv.NewReader(bytes.NewReader(raw))
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, false, fault.Newf(fault.Parse, "manifest", "no header row")
	}
	if err != nil {
		return nil, false, fault.New(fault.Parse, "manifest: read", err)
	}
	_, err = cr.Read()
	if err == io.EOF {
		return header, false, nil
	}
	return header, true, nil
}

func checkHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	var dups []string
	for _, c := range header {
		if seen[c] {
			dups = append(dups, c)
		}
		seen[c] = true
	}
	var missing []string
	for _, c := range Required {
		if !seen[c] {
			missing = append(missing, c)
		}
	}
	if len(dups) > 0 {
		return fault.Newf(fault.Parse, "manifest", "duplicate columns: %s", strings.Join(dups, ", "))
	}
	if len(missing) > 0 {
		return fault.Newf(fault.Parse, "manifest", "missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// FromRecords builds a dataset from a header record followed by data records.
func FromRecords(records [][]string) (*Dataset, error) {
	if len(records) == 0 {
		return nil, fault.Newf(fault.Parse, "manifest", "no header row")
	}
	header := records[0]
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	ds := &Dataset{Columns: append([]string(nil), header...), Rows: make([]Row, 0, len(records)-1)}
	for i, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, fault.Newf(fault.Parse, "manifest", "row %d: %d fields, header has %d", i+1, len(rec), len(header))
		}
		var row Row
		for j, c := range header {
			row.set(c, rec[j])
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

// Records renders the dataset as a header record followed by one record per
// row. Cells a row does not carry are left empty.
func (d *Dataset) Records() [][]string {
	out := make([][]string, 0, len(d.Rows)+1)
	out = append(out, append([]string(nil), d.Columns...))
	for _, row := range d.Rows {
		rec := make([]string, len(d.Columns))
		for j, c := range d.Columns {
			rec[j], _ = row.Get(c)
		}
		out = append(out, rec)
	}
	return out
}

// Write serializes the dataset with sep as the field separator.
func (d *Dataset) Write(w io.Writer, sep rune) error {
	if ContentType(sep) == "" {
		return fault.Newf(fault.Parse, "manifest: write", "unsupported separator %q", sep)
	}
	cw := csv.NewWriter(w)
	cw.Comma = sep
	if err := cw.WriteAll(d.Records()); err != nil {
		return fmt.Errorf("manifest: write: %w", err)
	}
	return nil
}

// Concat joins independently processed rows back into one dataset, keeping
// the given row order. Columns are base first, then every extra column any
// row carries in first-seen order, then the derived columns. The derived
// columns are present even with no rows.
func Concat(base []string, rows []Row) *Dataset {
	cols := append([]string(nil), base...)
	seen := make(map[string]bool, len(cols)+len(Derived))
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	for _, c := range base {
		seen[c] = true
	}
	for _, row := range rows {
		for _, c := range row.extraColumns() {
			add(c)
		}
	}
	for _, c := range Derived {
		add(c)
	}
	return &Dataset{Columns: cols, Rows: append([]Row(nil), rows...)}
}
