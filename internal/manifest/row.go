// Package manifest models the file manifest moved between the two platforms:
// typed rows, the tabular dataset they live in, and the pure row transforms
// applied before import.
package manifest

import "sort"

const (
	ColS3URI     = "s3_uri"
	ColComponent = "component"
	ColFilePath  = "filepath"

	ColVolumePath     = "volume_path"
	ColProjectPath    = "project_path"
	ColImportedFileID = "imported_file_id"
)

// Required columns every input manifest must carry.
var Required = []string{ColS3URI, ColComponent, ColFilePath}

// Derived columns, in output order.
var Derived = []string{ColVolumePath, ColProjectPath, ColImportedFileID}

// Row is one file to transfer. Columns outside the required set ride along
// in Extra so the output manifest keeps everything the input had.
type Row struct {
	S3URI     string            `json:"s3_uri"`
	Component string            `json:"component"`
	FilePath  string            `json:"filepath"`
	Extra     map[string]string `json:"extra,omitempty"`

	VolumePath     string `json:"volume_path,omitempty"`
	ProjectPath    string `json:"project_path,omitempty"`
	ImportedFileID string `json:"imported_file_id,omitempty"`
}

// Get returns the value stored under column name. Required and derived
// columns are always present, even when empty.
func (r Row) Get(col string) (string, bool) {
	switch col {
	case ColS3URI:
		return r.S3URI, true
	case ColComponent:
		return r.Component, true
	case ColFilePath:
		return r.FilePath, true
	case ColVolumePath:
		return r.VolumePath, true
	case ColProjectPath:
		return r.ProjectPath, true
	case ColImportedFileID:
		return r.ImportedFileID, true
	}
	v, ok := r.Extra[col]
	return v, ok
}

func (r *Row) set(col, v string) {
	switch col {
	case ColS3URI:
		r.S3URI = v
	case ColComponent:
		r.Component = v
	case ColFilePath:
		r.FilePath = v
	case ColVolumePath:
		r.VolumePath = v
	case ColProjectPath:
		r.ProjectPath = v
	case ColImportedFileID:
		r.ImportedFileID = v
	default:
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[col] = v
	}
}

// extraColumns lists the extra columns of r in name order.
func (r Row) extraColumns() []string {
	out := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WithImportedFileID returns a copy of r carrying the imported file id.
func (r Row) WithImportedFileID(id string) Row {
	r.Extra = cloneExtra(r.Extra)
	r.ImportedFileID = id
	return r
}

func cloneExtra(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
