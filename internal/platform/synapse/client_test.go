package synapse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifestflow/internal/fault"
	"manifestflow/internal/manifest"
	"manifestflow/internal/secrets"
)

const manifestCSV = "s3_uri,component,filepath\ns3://include-sandbox/synapse/a/b.txt,wf1,x/y.txt\n"

type fakeSynapse struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	uploaded  []byte
	created   map[string]string
	conflict  bool
	versioned map[string]any
}

func newFakeSynapse(t *testing.T) *fakeSynapse {
	f := &fakeSynapse{t: t}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /repo/v1/entity/syn123", func(w http.ResponseWriter, r *http.Request) {
		f.requireToken(r)
		writeJSON(w, map[string]any{"id": "syn123", "dataFileHandleId": "777", "concreteType": "org.sagebionetworks.repo.model.FileEntity"})
	})
	mux.HandleFunc("GET /repo/v1/entity/syn404", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"reason":"not found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("GET /file/v1/file/777", func(w http.ResponseWriter, r *http.Request) {
		f.requireToken(r)
		assert.Equal(t, "false", r.URL.Query().Get("redirect"))
		assert.Equal(t, "FileEntity", r.URL.Query().Get("fileAssociateType"))
		assert.Equal(t, "123", r.URL.Query().Get("fileAssociateId"))
		io.WriteString(w, f.srv.URL+"/s3/manifest.csv")
	})
	mux.HandleFunc("GET /s3/manifest.csv", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "token must not reach the bucket")
		io.WriteString(w, manifestCSV)
	})

	mux.HandleFunc("POST /file/v1/file/multipart", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sbg_manifest.csv", req["fileName"])
		assert.Equal(t, "text/csv", req["contentType"])
		writeJSON(w, map[string]any{"uploadId": "u1", "state": "UPLOADING", "partsState": "0"})
	})
	mux.HandleFunc("POST /file/v1/file/multipart/u1/presigned/url/batch", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"partPresignedUrls": []map[string]any{{
			"partNumber":         1,
			"uploadPresignedUrl": f.srv.URL + "/s3/upload/part1",
			"signedHeaders":      map[string]string{"Content-Type": "text/csv"},
		}}})
	})
	mux.HandleFunc("PUT /s3/upload/part1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/csv", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.uploaded = b
		f.mu.Unlock()
	})
	mux.HandleFunc("PUT /file/v1/file/multipart/u1/add/1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		want := md5Hex(f.uploaded)
		f.mu.Unlock()
		assert.Equal(t, want, r.URL.Query().Get("partMD5Hex"))
		writeJSON(w, map[string]any{"addPartState": "ADD_SUCCESS"})
	})
	mux.HandleFunc("PUT /file/v1/file/multipart/u1/complete", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"uploadId": "u1", "state": "COMPLETED", "resultFileHandleId": "999"})
	})
	mux.HandleFunc("POST /repo/v1/entity", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.conflict {
			http.Error(w, `{"reason":"name taken"}`, http.StatusConflict)
			return
		}
		f.created = req
		writeJSON(w, map[string]any{"id": "syn500"})
	})
	mux.HandleFunc("POST /repo/v1/entity/child", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "syn600"})
	})
	mux.HandleFunc("GET /repo/v1/entity/syn600", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "syn600", "etag": "e1", "dataFileHandleId": "1"})
	})
	mux.HandleFunc("PUT /repo/v1/entity/syn600", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("newVersion"))
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.versioned = req
		f.mu.Unlock()
		writeJSON(w, req)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSynapse) requireToken(r *http.Request) {
	assert.Equal(f.t, "Bearer syn-token", r.Header.Get("Authorization"))
}

func (f *fakeSynapse) client() *Client {
	cfg := DefaultConfig()
	cfg.RepoEndpoint = f.srv.URL + "/repo/v1"
	cfg.FileEndpoint = f.srv.URL + "/file/v1"
	cfg.HTTP.MaxRetries = 0
	return New(cfg)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

var args = BundleClientArgs(secrets.New(TokenEnv, "syn-token"))

func TestGetDataFrame(t *testing.T) {
	f := newFakeSynapse(t)

	ds, err := f.client().GetDataFrame(context.Background(), args, "syn123", manifest.Comma)
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "wf1", ds.Rows[0].Component)
	assert.Equal(t, "x/y.txt", ds.Rows[0].FilePath)
}

func TestGetDataFrame_NotFound(t *testing.T) {
	f := newFakeSynapse(t)

	_, err := f.client().GetDataFrame(context.Background(), args, "syn404", manifest.Comma)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestStoreDataFrame_Create(t *testing.T) {
	f := newFakeSynapse(t)
	ds, err := manifest.Parse(strings.NewReader(manifestCSV), manifest.Comma)
	require.NoError(t, err)

	id, err := f.client().StoreDataFrame(context.Background(), args, ds, "sbg_manifest.csv", "syn333", manifest.Comma)
	require.NoError(t, err)
	assert.Equal(t, "syn500", id)

	assert.Equal(t, manifestCSV, string(f.uploaded))
	assert.Equal(t, map[string]string{
		"concreteType":     "org.sagebionetworks.repo.model.FileEntity",
		"name":             "sbg_manifest.csv",
		"parentId":         "syn333",
		"dataFileHandleId": "999",
	}, f.created)
}

func TestStoreDataFrame_ExistingNameGetsNewVersion(t *testing.T) {
	f := newFakeSynapse(t)
	f.conflict = true
	ds, _ := manifest.Parse(strings.NewReader(manifestCSV), manifest.Comma)

	id, err := f.client().StoreDataFrame(context.Background(), args, ds, "sbg_manifest.csv", "syn333", manifest.Comma)
	require.NoError(t, err)
	assert.Equal(t, "syn600", id)
	assert.Equal(t, "999", f.versioned["dataFileHandleId"])
	assert.Equal(t, "e1", f.versioned["etag"])
}

func TestClientArgsDoNotLeakToken(t *testing.T) {
	assert.NotContains(t, args.String(), "syn-token")
}
