package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/vizflow/internal/api"
	"github.com/gyaneshwarpardhi/vizflow/internal/spec"
	"github.com/gyaneshwarpardhi/vizflow/internal/view"
)

const barsSpec = `
version: "%s"
name: bars
signals:
  - {name: color, value: red}
data:
  - name: table
    values:
      - {_id: a, v: 1}
      - {_id: b, v: 2}
marks:
  - name: bars
    type: rect
    from: {data: table}
    encode:
      x: {field: v}
      y: {value: 0}
      width: {value: 1}
      height: {value: 1}
      fill: {signal: color}
`

type fixture struct {
	srv  *httptest.Server
	view *view.View
	path string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(barsSpec, "1")), 0o644))

	loader, err := spec.NewLoader(path, nil)
	require.NoError(t, err)
	v, err := view.New(context.Background(), loader.Spec())
	require.NoError(t, err)
	t.Cleanup(v.Shutdown)

	srv := httptest.NewServer(api.New(v, loader, nil))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, view: v, path: path}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	_ = json.Unmarshal(buf.Bytes(), &out)
	return resp, out
}

func (f *fixture) bars(t *testing.T) []any {
	t.Helper()
	_, scene := f.do(t, http.MethodGet, "/v1/scene", "")
	marks := scene["marks"].([]any)
	require.Len(t, marks, 1)
	return marks[0].(map[string]any)["items"].([]any)
}

func TestSetSignal(t *testing.T) {
	f := setup(t)

	resp, body := f.do(t, http.MethodPost, "/v1/signals/color", `{"value":"blue"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "signal", body["kind"])
	assert.NotEmpty(t, body["stimulus_id"])

	for _, it := range f.bars(t) {
		props := it.(map[string]any)["props"].(map[string]any)
		assert.Equal(t, "blue", props["fill"])
	}

	resp, _ = f.do(t, http.MethodPost, "/v1/signals/nope", `{"value":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/v1/signals/color", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetSignals(t *testing.T) {
	f := setup(t)
	resp, body := f.do(t, http.MethodPost, "/v1/signals", `{"color":"green"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "signals", body["kind"])

	resp, _ = f.do(t, http.MethodPost, "/v1/signals", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChangeData(t *testing.T) {
	f := setup(t)

	resp, _ := f.do(t, http.MethodPost, "/v1/data/table", `{"kind":"insert","values":[{"_id":"c","v":3}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, f.bars(t), 3)

	resp, _ = f.do(t, http.MethodPost, "/v1/data/table", `{"kind":"update","tuple_id":"c","fields":{"v":7}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/v1/data/table", `{"kind":"remove","ids":["a","b"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := f.bars(t)
	require.Len(t, items, 1)
	assert.Equal(t, 7.0, items[0].(map[string]any)["props"].(map[string]any)["x"])

	resp, _ = f.do(t, http.MethodPost, "/v1/data/table", `{"kind":"signal"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/v1/data/table", `{"kind":"remove","ids":["zzz"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestIngestBatch(t *testing.T) {
	f := setup(t)

	resp, body := f.do(t, http.MethodPost, "/v1/stimuli/batch",
		`[{"kind":"signal","target":"color","value":"a"},{"kind":"signal","target":"color","value":"b"}]`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, body["job_id"])
	assert.EqualValues(t, 2, body["queued"])

	// The scene read is queued behind the batch.
	props := f.bars(t)[0].(map[string]any)["props"].(map[string]any)
	assert.Equal(t, "b", props["fill"])

	resp, _ = f.do(t, http.MethodPost, "/v1/stimuli/batch", `[]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/v1/stimuli/batch", `[{"kind":"bogus"}]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	big := "[" + strings.Repeat(`{"kind":"signal","target":"color"},`, 100) + `{"kind":"signal","target":"color"}]`
	resp, _ = f.do(t, http.MethodPost, "/v1/stimuli/batch", big)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReloadSpec(t *testing.T) {
	f := setup(t)
	resp, body := f.do(t, http.MethodGet, "/v1/spec", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", body["version"])

	require.NoError(t, os.WriteFile(f.path, []byte(fmt.Sprintf(barsSpec, "2")), 0o644))
	resp, body = f.do(t, http.MethodPost, "/v1/spec/reload", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["reloaded"])
	assert.Equal(t, "2", f.view.Spec().Version)

	require.NoError(t, os.WriteFile(f.path, []byte("version: \"\"\n"), 0o644))
	resp, _ = f.do(t, http.MethodPost, "/v1/spec/reload", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "2", f.view.Spec().Version)
}

func TestProbes(t *testing.T) {
	f := setup(t)

	resp, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])

	resp, _ = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
