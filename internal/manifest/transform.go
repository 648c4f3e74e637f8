package manifest

import "strings"

// Transform derives the volume and project paths of a row.
type Transform struct {
	// URIPrefix is stripped from s3_uri to get the path on the volume.
	URIPrefix string
	// Namespace is the top folder of every project path.
	Namespace string
}

var DefaultTransform = Transform{
	URIPrefix: "s3://include-sandbox/synapse/",
	Namespace: "synapse",
}

// Prepare fills VolumePath and ProjectPath. A row whose s3_uri does not start
// with the prefix keeps the full URI as its volume path; matched reports
// whether the prefix was found.
func (t Transform) Prepare(r Row) (out Row, matched bool) {
	out = r
	out.Extra = cloneExtra(r.Extra)
	out.VolumePath, matched = strings.CutPrefix(r.S3URI, t.URIPrefix)
	out.ProjectPath = t.Namespace + "/" + r.Component + "/" + r.FilePath
	return out, matched
}
