package sevenbridges

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/cenkalti/backoff"

	"manifestflow/internal/fault"
)

const (
	importCompleted = "COMPLETED"
	importFailed    = "FAILED"
)

type importJob struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Result *struct {
		ID string `json:"id"`
	} `json:"result"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Message)
}

var errPending = errors.New("import pending")

// ImportVolumeFile imports volumePath from the volume into the project at
// projectPath, creating the parent folders as needed, and waits for the
// import to finish. It returns the id of the new file.
func (c *Client) ImportVolumeFile(ctx context.Context, args ClientArgs, projectID, volumeID, volumePath, projectPath string) (string, error) {
	dir, name := path.Split(strings.Trim(projectPath, "/"))
	dest := map[string]string{"name": name}
	if dir = strings.Trim(dir, "/"); dir == "" {
		dest["project"] = projectID
	} else {
		parent, err := c.ensureFolder(ctx, args, projectID, dir)
		if err != nil {
			return "", err
		}
		dest["parent"] = parent
	}

	var job importJob
	err := c.http.SendJSON(ctx, http.MethodPost, "sevenbridges: submit import", "/storage/imports", nil, args, map[string]any{
		"source":      map[string]string{"volume": volumeID, "location": volumePath},
		"destination": dest,
		"overwrite":   false,
	}, &job)
	if err != nil {
		return "", err
	}
	return c.waitImport(ctx, args, job)
}

func (c *Client) waitImport(ctx context.Context, args ClientArgs, job importJob) (string, error) {
	const op = "sevenbridges: import"
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.PollInterval
	b.MaxInterval = c.cfg.PollMaxInterval
	b.MaxElapsedTime = 0

	poll := func() error {
		switch job.State {
		case importCompleted:
			return nil
		case importFailed:
			return backoff.Permanent(importError(op, job))
		}
		if err := c.http.GetJSON(ctx, op, "/storage/imports/"+url.PathEscape(job.ID), nil, args, &job); err != nil {
			return backoff.Permanent(err)
		}
		switch job.State {
		case importCompleted:
			return nil
		case importFailed:
			return backoff.Permanent(importError(op, job))
		}
		return errPending
	}
	if err := backoff.Retry(poll, backoff.WithContext(b, ctx)); err != nil {
		var fe *fault.Error
		if !errors.As(err, &fe) {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			err = fault.New(fault.Remote, op, err)
		}
		return "", err
	}
	if job.Result == nil || job.Result.ID == "" {
		return "", fault.Newf(fault.Remote, op, "import %s completed without a file", job.ID)
	}
	return job.Result.ID, nil
}

func importError(op string, job importJob) error {
	if job.Error == nil {
		return fault.Newf(fault.Remote, op, "import %s failed", job.ID)
	}
	kind := fault.Remote
	if job.Error.Status != 0 {
		kind = fault.StatusKind(job.Error.Status)
	}
	return &fault.Error{Kind: kind, Op: op, Status: job.Error.Status, Err: job.Error}
}

type file struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ensureFolder returns the id of the folder at dir inside the project,
// creating missing segments. Concurrent callers for the same folder share one
// lookup; that lookup runs under its own timeout, and each caller stops
// waiting when its own ctx is done.
func (c *Client) ensureFolder(ctx context.Context, args ClientArgs, projectID, dir string) (string, error) {
	key := projectID + ":" + dir
	if id, ok := c.folders.Load(key); ok {
		return id.(string), nil
	}
	ch := c.inflight.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FolderTimeout)
		defer cancel()
		return c.resolveFolder(sctx, args, projectID, dir)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("sevenbridges: folder %s: %w", dir, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) resolveFolder(ctx context.Context, args ClientArgs, projectID, dir string) (string, error) {
	parent := ""
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		var err error
		if parent, err = c.ensureFolder(ctx, args, projectID, dir[:i]); err != nil {
			return "", err
		}
	}
	id, err := c.findOrCreateFolder(ctx, args, projectID, parent, path.Base(dir))
	if err != nil {
		return "", err
	}
	c.folders.Store(projectID+":"+dir, id)
	return id, nil
}

func (c *Client) findOrCreateFolder(ctx context.Context, args ClientArgs, projectID, parent, name string) (string, error) {
	const op = "sevenbridges: folder"
	q := url.Values{"name": {name}}
	body := map[string]string{"name": name, "type": "folder"}
	if parent == "" {
		q.Set("project", projectID)
		body["project"] = projectID
	} else {
		q.Set("parent", parent)
		body["parent"] = parent
	}

	find := func() (string, bool, error) {
		f, ok, err := list(ctx, c, op, "/files", q, args, func(f file) bool { return f.Name == name })
		if err != nil || !ok {
			return "", ok, err
		}
		if f.Type != "folder" {
			return "", false, fault.Newf(fault.Conflict, op, "%s exists and is not a folder", name)
		}
		return f.ID, true, nil
	}

	if id, ok, err := find(); err != nil || ok {
		return id, err
	}
	var created file
	err := c.http.SendJSON(ctx, http.MethodPost, op, "/files", nil, args, body, &created)
	if fault.KindOf(err) == fault.Conflict {
		// created by another process since the lookup
		if id, ok, ferr := find(); ferr != nil || ok {
			return id, ferr
		}
	}
	if err != nil {
		return "", err
	}
	return created.ID, nil
}
