// Package synapse talks to the Synapse repository REST API: reading a
// tabular file entity into a manifest and storing a manifest back as a file
// entity in a folder.
package synapse

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"manifestflow/internal/fault"
	"manifestflow/internal/manifest"
	"manifestflow/internal/rest"
	"manifestflow/internal/secrets"
)

const (
	DefaultRepoEndpoint = "https://repo-prod.prod.sagebase.org/repo/v1"
	DefaultFileEndpoint = "https://repo-prod.prod.sagebase.org/file/v1"

	// TokenEnv is the variable the personal access token is read from.
	TokenEnv = "SYNAPSE_AUTH_TOKEN"
)

// ClientArgs is the per-run session for Synapse. It only carries the token
// and is safe to share between goroutines.
type ClientArgs struct {
	token secrets.Secret
}

// BundleClientArgs wraps a token into the value every operation takes.
func BundleClientArgs(token secrets.Secret) ClientArgs {
	return ClientArgs{token: token}
}

func (a ClientArgs) Authorize(h http.Header) {
	h.Set("Authorization", "Bearer "+a.token.Value())
}

func (a ClientArgs) String() string { return "synapse.ClientArgs{token: ***}" }

type Config struct {
	RepoEndpoint string
	FileEndpoint string
	HTTP         rest.Config
}

func DefaultConfig() Config {
	return Config{
		RepoEndpoint: DefaultRepoEndpoint,
		FileEndpoint: DefaultFileEndpoint,
		HTTP:         rest.DefaultConfig(),
	}
}

type Client struct {
	http *rest.Client
	file string
}

func New(cfg Config) *Client {
	if cfg.RepoEndpoint == "" {
		cfg.RepoEndpoint = DefaultRepoEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = DefaultFileEndpoint
	}
	hc := cfg.HTTP
	hc.BaseURL = cfg.RepoEndpoint
	return &Client{http: rest.New(hc), file: strings.TrimSuffix(cfg.FileEndpoint, "/")}
}

type entity struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	ConcreteType     string `json:"concreteType"`
	DataFileHandleID string `json:"dataFileHandleId"`
}

// GetDataFrame downloads the file behind synapseID and parses it with sep.
// A zero sep means comma.
func (c *Client) GetDataFrame(ctx context.Context, args ClientArgs, synapseID string, sep rune) (*manifest.Dataset, error) {
	if sep == 0 {
		sep = manifest.Comma
	}
	var ent entity
	if err := c.http.GetJSON(ctx, "synapse: get entity", "/entity/"+url.PathEscape(synapseID), nil, args, &ent); err != nil {
		return nil, err
	}
	if ent.DataFileHandleID == "" {
		return nil, fault.Newf(fault.NotFound, "synapse: get entity", "%s (%s) has no file handle", synapseID, ent.ConcreteType)
	}

	q := url.Values{
		"redirect":          {"false"},
		"fileAssociateType": {"FileEntity"},
		"fileAssociateId":   {strings.TrimPrefix(ent.ID, "syn")},
	}
	resp, err := c.http.Do(ctx, &rest.Request{
		Op:     "synapse: get file url",
		Method: http.MethodGet,
		Path:   c.file + "/file/" + url.PathEscape(ent.DataFileHandleID),
		Query:  q,
		Auth:   args,
	})
	if err != nil {
		return nil, err
	}
	presigned := strings.TrimSpace(string(resp.Body))

	data, err := c.http.Do(ctx, &rest.Request{Op: "synapse: download", Method: http.MethodGet, Path: presigned})
	if err != nil {
		return nil, err
	}
	return manifest.Parse(bytes.NewReader(data.Body), sep)
}

// StoreDataFrame uploads ds as a delimited file called name under the folder
// parentID and returns the id of the file entity. When the folder already
// holds an entity with that name, the entity gets a new version pointing at
// the uploaded file.
func (c *Client) StoreDataFrame(ctx context.Context, args ClientArgs, ds *manifest.Dataset, name, parentID string, sep rune) (string, error) {
	if sep == 0 {
		sep = manifest.Comma
	}
	var buf bytes.Buffer
	if err := ds.Write(&buf, sep); err != nil {
		return "", err
	}
	handleID, err := c.upload(ctx, args, name, manifest.ContentType(sep), buf.Bytes())
	if err != nil {
		return "", err
	}

	created := entity{}
	err = c.http.SendJSON(ctx, http.MethodPost, "synapse: create entity", "/entity", nil, args, map[string]string{
		"concreteType":     "org.sagebionetworks.repo.model.FileEntity",
		"name":             name,
		"parentId":         parentID,
		"dataFileHandleId": handleID,
	}, &created)
	if err == nil {
		return created.ID, nil
	}
	if fault.KindOf(err) != fault.Conflict {
		return "", err
	}
	return c.newVersion(ctx, args, name, parentID, handleID)
}

func (c *Client) newVersion(ctx context.Context, args ClientArgs, name, parentID, handleID string) (string, error) {
	var lookup struct {
		ID string `json:"id"`
	}
	err := c.http.SendJSON(ctx, http.MethodPost, "synapse: lookup child", "/entity/child", nil, args,
		map[string]string{"parentId": parentID, "entityName": name}, &lookup)
	if err != nil {
		return "", err
	}

	// round-trip the full entity so the etag and annotations survive the update
	var current map[string]any
	path := "/entity/" + url.PathEscape(lookup.ID)
	if err := c.http.GetJSON(ctx, "synapse: get entity", path, nil, args, &current); err != nil {
		return "", err
	}
	current["dataFileHandleId"] = handleID

	var updated entity
	err = c.http.SendJSON(ctx, http.MethodPut, "synapse: update entity", path, url.Values{"newVersion": {"true"}}, args, current, &updated)
	if err != nil {
		return "", err
	}
	return updated.ID, nil
}
