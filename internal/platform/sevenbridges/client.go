// Package sevenbridges wraps the Seven Bridges public API (v2) operations
// the import flow needs: project, app and volume resolution and volume file
// imports.
package sevenbridges

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"manifestflow/internal/fault"
	"manifestflow/internal/rest"
	"manifestflow/internal/secrets"
)

const (
	DefaultEndpoint = "https://cavatica-api.sbgenomics.com/v2"
	TokenEnv        = "SB_AUTH_TOKEN"

	pageSize = 100
)

// ClientArgs is the per-run session for Seven Bridges.
type ClientArgs struct {
	token secrets.Secret
}

func BundleClientArgs(token secrets.Secret) ClientArgs {
	return ClientArgs{token: token}
}

func (a ClientArgs) Authorize(h http.Header) {
	h.Set("X-SBG-Auth-Token", a.token.Value())
}

func (a ClientArgs) String() string { return "sevenbridges.ClientArgs{token: ***}" }

type Config struct {
	Endpoint string
	HTTP     rest.Config
	// PollInterval is the first wait between import status checks; waits
	// grow up to PollMaxInterval.
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	// FolderTimeout bounds one shared folder lookup. It is independent of
	// the deadlines of the imports waiting on it.
	FolderTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Endpoint:        DefaultEndpoint,
		HTTP:            rest.DefaultConfig(),
		PollInterval:    time.Second,
		PollMaxInterval: 15 * time.Second,
		FolderTimeout:   2 * time.Minute,
	}
}

type Client struct {
	http *rest.Client
	cfg  Config

	// folders caches resolved folder ids by project and path.
	folders  sync.Map
	inflight singleflight.Group
}

func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PollMaxInterval < cfg.PollInterval {
		cfg.PollMaxInterval = cfg.PollInterval
	}
	if cfg.FolderTimeout <= 0 {
		cfg.FolderTimeout = 2 * time.Minute
	}
	hc := cfg.HTTP
	hc.BaseURL = cfg.Endpoint
	return &Client{http: rest.New(hc), cfg: cfg}
}

type page[T any] struct {
	Items []T `json:"items"`
}

// list walks an offset-paginated collection until keep returns true or the
// collection is exhausted.
func list[T any](ctx context.Context, c *Client, op, p string, q url.Values, args ClientArgs, keep func(T) bool) (T, bool, error) {
	var zero T
	if q == nil {
		q = url.Values{}
	}
	for offset := 0; ; offset += pageSize {
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(pageSize))
		var pg page[T]
		if err := c.http.GetJSON(ctx, op, p, q, args, &pg); err != nil {
			return zero, false, err
		}
		for _, it := range pg.Items {
			if keep(it) {
				return it, true, nil
			}
		}
		if len(pg.Items) < pageSize {
			return zero, false, nil
		}
	}
}

type named struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BillingGroup string `json:"billing_group"`
}

// GetProjectID resolves the project called projectName that is billed to the
// billing group called billingGroupName.
func (c *Client) GetProjectID(ctx context.Context, args ClientArgs, projectName, billingGroupName string) (string, error) {
	const op = "sevenbridges: get project"
	bg, ok, err := list(ctx, c, op, "/billing/groups", nil, args, func(g named) bool { return g.Name == billingGroupName })
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fault.Newf(fault.NotFound, op, "billing group %q not found", billingGroupName)
	}

	q := url.Values{"name": {projectName}, "fields": {"_all"}}
	p, ok, err := list(ctx, c, op, "/projects", q, args, func(p named) bool {
		return p.Name == projectName && p.BillingGroup == bg.ID
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fault.Newf(fault.NotFound, op, "project %q in billing group %q not found", projectName, billingGroupName)
	}
	return p.ID, nil
}

// GetCopiedAppID makes sure the app sourceAppID has a copy in projectID and
// returns the copy's id. An existing copy is reused.
func (c *Client) GetCopiedAppID(ctx context.Context, args ClientArgs, projectID, sourceAppID string) (string, error) {
	short := path.Base(strings.TrimSuffix(sourceAppID, "/"))
	target := projectID + "/" + short

	var app named
	err := c.http.GetJSON(ctx, "sevenbridges: get app", "/apps/"+target, nil, args, &app)
	if err == nil {
		return app.ID, nil
	}
	if fault.KindOf(err) != fault.NotFound {
		return "", err
	}

	err = c.http.SendJSON(ctx, http.MethodPost, "sevenbridges: copy app", "/apps/"+sourceAppID+"/actions/copy", nil, args,
		map[string]string{"project": projectID, "name": short}, &app)
	if err != nil {
		return "", err
	}
	return app.ID, nil
}

// GetVolumeID resolves a storage volume by name.
func (c *Client) GetVolumeID(ctx context.Context, args ClientArgs, volumeName string) (string, error) {
	const op = "sevenbridges: get volume"
	v, ok, err := list(ctx, c, op, "/storage/volumes", nil, args, func(v named) bool {
		return v.Name == volumeName || v.ID == volumeName
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fault.Newf(fault.NotFound, op, "volume %q not found", volumeName)
	}
	return v.ID, nil
}
