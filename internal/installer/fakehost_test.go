package installer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeHost is a minimal host admin API.
type fakeHost struct {
	t *testing.T

	mu          sync.Mutex
	password    string
	uploads     map[string][]byte
	uninstalled []string
	plugins     []map[string]any
	logs        []any
	uploadError string
}

func newFakeHost(t *testing.T, password string) (*fakeHost, *httptest.Server) {
	h := &fakeHost{t: t, password: MD5Hex(password), uploads: map[string][]byte{}}
	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, h.login)
	mux.HandleFunc(uploadPath, h.authed(h.upload))
	mux.HandleFunc(listPath, h.authed(h.list))
	mux.HandleFunc(logsPath, h.authed(h.logHistory))
	mux.HandleFunc(uninstallPath, h.authed(h.uninstall))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, srv
}

func reply(w http.ResponseWriter, status, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "message": message, "data": data})
}

func (h *fakeHost) login(w http.ResponseWriter, r *http.Request) {
	var body struct{ Username, Password string }
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Username != DefaultUsername || body.Password != h.password {
		reply(w, "error", "用户名或密码错误", nil)
		return
	}
	reply(w, "ok", "", map[string]any{"token": "tok-1", "username": body.Username})
}

func (h *fakeHost) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (h *fakeHost) upload(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer f.Close()
	data, _ := io.ReadAll(f)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.uploadError != "" {
		reply(w, "error", h.uploadError, nil)
		return
	}
	h.uploads[hdr.Filename] = data
	reply(w, "ok", "安装成功", nil)
}

func (h *fakeHost) list(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	reply(w, "ok", "", h.plugins)
}

func (h *fakeHost) logHistory(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	reply(w, "ok", "", map[string]any{"logs": h.logs})
}

func (h *fakeHost) uninstall(w http.ResponseWriter, r *http.Request) {
	var body struct{ Name string }
	_ = json.NewDecoder(r.Body).Decode(&body)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.uninstalled = append(h.uninstalled, body.Name)
	reply(w, "ok", "", nil)
}

func (h *fakeHost) setPlugins(p ...map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plugins = p
}

func (h *fakeHost) setLogs(logs ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs = logs
}

func (h *fakeHost) setUploadError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.uploadError = msg
}

func (h *fakeHost) uploaded(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.uploads[name]
	return ok
}

func (h *fakeHost) uninstalledNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.uninstalled...)
}
