package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/apidesk/internal/catalog"
	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/envvars"
	"github.com/loykin/apidesk/internal/kv"
	"github.com/loykin/apidesk/internal/workspace"
)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *workspace.Workspace) {
	t.Helper()
	ws := workspace.New(kv.NewMemory(), nil, workspace.Options{
		CoalesceWait: time.Hour,
		BaseURL:      "http://api.local",
		Catalog: &catalog.Document{Endpoints: []catalog.Endpoint{
			{Method: "GET", Path: "/users", Name: "List users", QueryParams: []catalog.Param{{Name: "page", DefaultValue: 1}}},
		}},
	})
	if _, err := ws.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	server := NewServer(ws, opts)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		srv.Close()
		server.Close()
		_ = ws.Close(context.Background())
	})
	return srv, ws
}

func call(t *testing.T, method, url string, body any, headers ...string) (int, []byte) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func TestTabsFlow(t *testing.T) {
	srv, ws := newTestServer(t, Options{})

	status, body := call(t, http.MethodPost, srv.URL+"/tabs/select", map[string]string{"method": "GET", "path": "/users"})
	if status != http.StatusOK {
		t.Fatalf("select: %d %s", status, body)
	}
	var view viewBody
	_ = json.Unmarshal(body, &view)
	if view.State != "viewing" || view.Key != "GET:/users" || view.Document == nil || view.Document.Request.QueryParams[0].V != "1" {
		t.Fatalf("view = %s", body)
	}

	_, _ = call(t, http.MethodPost, srv.URL+"/tabs/select", map[string]string{"method": "POST", "path": "/users"})
	status, body = call(t, http.MethodPost, srv.URL+"/tabs/reorder", map[string]any{"key": "POST:/users", "index": 0})
	if status != http.StatusOK {
		t.Fatalf("reorder: %d %s", status, body)
	}
	var lb ledgerBody
	_ = json.Unmarshal(body, &lb)
	if len(lb.Entries) != 2 || lb.Entries[0].TabKey != "POST:/users" || lb.Active != "POST:/users" {
		t.Fatalf("ledger = %s", body)
	}

	status, body = call(t, http.MethodPatch, srv.URL+"/tabs/current/request", map[string]string{"url": "http://x/{{.env.ID}}"})
	if status != http.StatusOK {
		t.Fatalf("patch: %d %s", status, body)
	}
	status, _ = call(t, http.MethodGet, srv.URL+"/tabs/current/rendered", nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("render with missing variable = %d", status)
	}
	ws.Env.Vars().Add("ID", "7")
	status, body = call(t, http.MethodGet, srv.URL+"/tabs/current/rendered", nil)
	if status != http.StatusOK || !bytes.Contains(body, []byte(`"url":"http://x/7"`)) {
		t.Fatalf("rendered: %d %s", status, body)
	}

	status, _ = call(t, http.MethodPost, srv.URL+"/tabs/current/response", map[string]any{"status": 200, "body": "ok"})
	if status != http.StatusOK {
		t.Fatalf("response: %d", status)
	}

	status, body = call(t, http.MethodPost, srv.URL+"/tabs/close", map[string]string{"key": "POST:/users"})
	if status != http.StatusOK {
		t.Fatalf("close: %d %s", status, body)
	}
	status, _ = call(t, http.MethodPatch, srv.URL+"/tabs/current/request", map[string]string{"url": "x"})
	if status != http.StatusConflict {
		t.Fatalf("patch without a bound tab = %d", status)
	}

	status, _ = call(t, http.MethodPost, srv.URL+"/tabs/activate", map[string]string{"key": "nonsense"})
	if status != http.StatusBadRequest {
		t.Fatalf("activate invalid key = %d", status)
	}

	status, body = call(t, http.MethodDelete, srv.URL+"/tabs", nil)
	if status != http.StatusOK || !bytes.Contains(body, []byte(`"entries":[]`)) {
		t.Fatalf("close all: %d %s", status, body)
	}
}

func TestEnvEndpoints(t *testing.T) {
	srv, ws := newTestServer(t, Options{})

	status, body := call(t, http.MethodPost, srv.URL+"/env", map[string]string{"name": "A", "value": "1"})
	if status != http.StatusCreated {
		t.Fatalf("add: %d %s", status, body)
	}
	var created struct{ ID string }
	_ = json.Unmarshal(body, &created)

	status, _ = call(t, http.MethodPatch, srv.URL+"/env/"+created.ID, map[string]string{"value": "2"})
	if status != http.StatusOK {
		t.Fatalf("patch: %d", status)
	}
	if v, _ := ws.Env.Vars().Lookup("A"); v != "2" {
		t.Fatalf("A = %q", v)
	}

	ws.Env.Vars().Set(envvars.Merge(&envvars.Environment{Variables: []envvars.Variable{
		{Name: "LOCKED", Source: envvars.Source{Value: ptr("x")}},
	}}, nil))
	locked := ws.Env.Vars().Vars()[0].ID
	status, _ = call(t, http.MethodPatch, srv.URL+"/env/"+locked, map[string]string{"value": "y"})
	if status != http.StatusConflict {
		t.Fatalf("patching a static variable = %d", status)
	}
	status, _ = call(t, http.MethodDelete, srv.URL+"/env/"+locked, nil)
	if status != http.StatusConflict {
		t.Fatalf("deleting a static variable = %d", status)
	}

	status, body = call(t, http.MethodGet, srv.URL+"/env", nil)
	var eb envBody
	_ = json.Unmarshal(body, &eb)
	if status != http.StatusOK || len(eb.Variables) != 2 || eb.Variables[0].Name != "LOCKED" {
		t.Fatalf("list: %d %s", status, body)
	}

	status, _ = call(t, http.MethodPost, srv.URL+"/env/refresh", nil)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("refresh without remote = %d", status)
	}
}

func TestFileEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	status, body := call(t, http.MethodPost, srv.URL+"/files", []byte("blob-data"))
	if status != http.StatusCreated {
		t.Fatalf("upload: %d %s", status, body)
	}
	var created struct{ ID string }
	_ = json.Unmarshal(body, &created)

	status, body = call(t, http.MethodGet, srv.URL+"/files/"+created.ID, nil)
	if status != http.StatusOK || string(body) != "blob-data" {
		t.Fatalf("get: %d %q", status, body)
	}
	status, _ = call(t, http.MethodDelete, srv.URL+"/files/"+created.ID, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete: %d", status)
	}
	status, _ = call(t, http.MethodGet, srv.URL+"/files/"+created.ID, nil)
	if status != http.StatusNotFound {
		t.Fatalf("get after delete: %d", status)
	}
}

func TestJWTMiddleware(t *testing.T) {
	cfg := JWTConfig{Secret: []byte("dev-secret"), Issuer: "apidesk", Audience: "ui"}
	srv, _ := newTestServer(t, Options{JWT: &cfg})

	if status, _ := call(t, http.MethodGet, srv.URL+"/healthz", nil); status != http.StatusOK {
		t.Fatalf("healthz must stay public, got %d", status)
	}
	if status, _ := call(t, http.MethodGet, srv.URL+"/tabs", nil); status != http.StatusUnauthorized {
		t.Fatalf("missing token = %d", status)
	}

	tok, err := IssueToken(cfg, "tester", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if status, _ := call(t, http.MethodGet, srv.URL+"/tabs", nil, "Authorization", "Bearer "+tok); status != http.StatusOK {
		t.Fatalf("valid token = %d", status)
	}

	wrongSecret, _ := IssueToken(JWTConfig{Secret: []byte("other"), Issuer: "apidesk", Audience: "ui"}, "x", time.Minute)
	if status, _ := call(t, http.MethodGet, srv.URL+"/tabs", nil, "Authorization", "Bearer "+wrongSecret); status != http.StatusUnauthorized {
		t.Fatalf("wrong secret = %d", status)
	}
	wrongAud, _ := IssueToken(JWTConfig{Secret: cfg.Secret, Issuer: "apidesk", Audience: "cli"}, "x", time.Minute)
	if status, _ := call(t, http.MethodGet, srv.URL+"/tabs", nil, "Authorization", "Bearer "+wrongAud); status != http.StatusUnauthorized {
		t.Fatalf("wrong audience = %d", status)
	}
}

func ptr(s string) *string { return &s }

func TestMountUnderAppRouter(t *testing.T) {
	ws := workspace.New(kv.NewMemory(), nil, workspace.Options{CoalesceWait: time.Hour})
	t.Cleanup(func() { _ = ws.Close(context.Background()) })

	engine := gin.New()
	engine.GET("/user", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	stop := Mount(engine.Group("/desk"), ws, Options{})
	t.Cleanup(stop)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	if status, _ := call(t, http.MethodGet, srv.URL+"/user", nil); status != http.StatusOK {
		t.Fatalf("app route = %d", status)
	}
	status, body := call(t, http.MethodPost, srv.URL+"/desk/tabs/select", map[string]string{"method": "GET", "path": "/orders"})
	if status != http.StatusOK || !bytes.Contains(body, []byte(`"key":"GET:/orders"`)) {
		t.Fatalf("mounted select: %d %s", status, body)
	}
	if status, _ := call(t, http.MethodGet, srv.URL+"/tabs", nil); status != http.StatusNotFound {
		t.Fatalf("routes must only exist under the mount prefix, got %d", status)
	}
}

func TestServer_LogsViewTransitions(t *testing.T) {
	prev := common.GetLogger()
	var buf bytes.Buffer
	common.SetDefaultLogger(common.NewLoggerWithWriter(&buf, common.LogLevelDebug))
	t.Cleanup(func() { common.SetDefaultLogger(prev) })

	ws := workspace.New(kv.NewMemory(), nil, workspace.Options{CoalesceWait: time.Hour})
	t.Cleanup(func() { _ = ws.Close(context.Background()) })
	server := NewServer(ws, Options{})

	if err := ws.Sync.Select(context.Background(), "GET", "/orders"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("view changed")) || !bytes.Contains(buf.Bytes(), []byte("state=viewing")) {
		t.Fatalf("transition not logged: %s", buf.String())
	}

	server.Close()
	buf.Reset()
	if err := ws.Sync.SelectEndpoint(context.Background(), nil); err != nil {
		t.Fatalf("SelectEndpoint(nil): %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte("view changed")) {
		t.Fatalf("closed server still observing: %s", buf.String())
	}
}
