package installer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codemage/internal/config"
	"github.com/fyrsmithlabs/codemage/internal/logging"
	"github.com/fyrsmithlabs/codemage/internal/sanitize"
)

const (
	loginPath     = "/api/auth/login"
	uploadPath    = "/api/plugin/install-upload"
	listPath      = "/api/plugin/get"
	logsPath      = "/api/log-history"
	uninstallPath = "/api/plugin/uninstall"

	maxErrorLogs     = 20
	maxResponseBytes = 8 << 20
	defaultTimeout   = 60 * time.Second
)

// ErrNotConfigured is returned when no admin password is known.
var ErrNotConfigured = errors.New("installer credentials not configured")

// InstallResult reports the outcome of an upload.
type InstallResult struct {
	Success    bool   `json:"success"`
	PluginName string `json:"plugin_name"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StatusReport describes how the host sees an installed plugin.
type StatusReport struct {
	PluginName string   `json:"plugin_name"`
	Installed  bool     `json:"installed"`
	Activated  bool     `json:"activated"`
	HasErrors  bool     `json:"has_errors"`
	ErrorLogs  []string `json:"error_logs"`
}

// RemotePlugin is one entry of the host plugin list.
type RemotePlugin struct {
	Name      string `json:"name"`
	Activated bool   `json:"activated"`
	Version   string `json:"version,omitempty"`
	Desc      string `json:"desc,omitempty"`
}

// apiResponse is the envelope every admin endpoint returns.
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the host admin API.
type Client struct {
	cfg         config.InstallerConfig
	store       *CredentialStore
	httpClient  *http.Client
	pluginsRoot func() (string, bool)
	logger      *logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithPluginsRoot lets Uninstall remove the local plugin directory.
func WithPluginsRoot(fn func() (string, bool)) Option {
	return func(c *Client) { c.pluginsRoot = fn }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client.
func New(cfg config.InstallerConfig, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		cfg:        cfg,
		store:      NewCredentialStore(cfg.CredentialsFile),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("installer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the credential store.
func (c *Client) Store() *CredentialStore { return c.store }

// Credentials resolves the effective credentials. Saved credentials with a
// password take precedence over configuration.
func (c *Client) Credentials() Credentials {
	saved, err := c.store.Load()
	if err != nil {
		c.logger.Warn(context.Background(), "loading saved credentials failed", zap.Error(err))
	}
	if err == nil && saved.Configured() {
		saved.URL = NormalizeURL(saved.URL)
		return saved
	}
	return Credentials{
		URL:         NormalizeURL(c.cfg.URL),
		Username:    c.cfg.Username,
		PasswordMD5: c.cfg.PasswordMD5.Value(),
	}.withDefaults()
}

// Configured reports whether installation is enabled and a password is known.
func (c *Client) Configured() bool {
	return c.cfg.Enabled && c.Credentials().Configured()
}

// Install uploads archive and reports whether the host accepted it.
func (c *Client) Install(ctx context.Context, archive, name string) (InstallResult, error) {
	res := InstallResult{PluginName: name}

	creds := c.Credentials()
	token, err := c.login(ctx, creds)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	body, contentType, err := multipartFile(archive)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	resp, err := c.do(ctx, http.MethodPost, creds.URL+uploadPath, token, contentType, body)
	if err != nil {
		res.Error = err.Error()
		return res, fmt.Errorf("uploading plugin: %w", err)
	}

	res.Success = true
	res.Message = resp.Message
	c.logger.Info(ctx, "plugin uploaded", zap.String("plugin", name), zap.String("message", resp.Message))
	return res, nil
}

// InstallDir packages dir, installs it and removes the archive.
func (c *Client) InstallDir(ctx context.Context, dir string) (InstallResult, error) {
	archive, err := c.Package(ctx, dir)
	if err != nil {
		return InstallResult{PluginName: filepath.Base(dir), Error: err.Error()}, err
	}
	defer func() {
		if err := RemoveArchive(archive); err != nil {
			c.logger.Debug(ctx, "removing archive failed", zap.String("archive", archive), zap.Error(err))
		}
	}()
	return c.Install(ctx, archive, filepath.Base(dir))
}

// ListRemote returns the plugins the host has loaded.
func (c *Client) ListRemote(ctx context.Context) ([]RemotePlugin, error) {
	creds := c.Credentials()
	token, err := c.login(ctx, creds)
	if err != nil {
		return nil, err
	}
	return c.listRemote(ctx, creds, token)
}

func (c *Client) listRemote(ctx context.Context, creds Credentials, token string) ([]RemotePlugin, error) {
	resp, err := c.do(ctx, http.MethodGet, creds.URL+listPath, token, "", nil)
	if err != nil {
		return nil, fmt.Errorf("listing plugins: %w", err)
	}
	var plugins []RemotePlugin
	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		if err := json.Unmarshal(resp.Data, &plugins); err != nil {
			return nil, fmt.Errorf("parsing plugin list: %w", err)
		}
	}
	return plugins, nil
}

// CheckStatus reports whether the host loaded the plugin and collects log
// lines mentioning it that look like errors.
func (c *Client) CheckStatus(ctx context.Context, name string) (StatusReport, error) {
	report := StatusReport{PluginName: name, ErrorLogs: []string{}}

	creds := c.Credentials()
	token, err := c.login(ctx, creds)
	if err != nil {
		return report, err
	}

	plugins, err := c.listRemote(ctx, creds, token)
	if err != nil {
		return report, err
	}
	for _, p := range plugins {
		if p.Name == name {
			report.Installed = true
			report.Activated = p.Activated
			break
		}
	}

	logs, err := c.logHistory(ctx, creds, token)
	if err != nil {
		c.logger.Warn(ctx, "fetching host logs failed", zap.Error(err))
	}
	for _, line := range logs {
		if !strings.Contains(line, name) {
			continue
		}
		if strings.Contains(line, "ERROR") || strings.Contains(line, "Traceback") {
			report.ErrorLogs = append(report.ErrorLogs, line)
		}
	}
	if len(report.ErrorLogs) > maxErrorLogs {
		report.ErrorLogs = report.ErrorLogs[len(report.ErrorLogs)-maxErrorLogs:]
	}

	report.HasErrors = !report.Installed || !report.Activated || len(report.ErrorLogs) > 0
	return report, nil
}

// Uninstall removes the plugin from the host and deletes its local
// directory when one exists under the plugins root.
func (c *Client) Uninstall(ctx context.Context, name string) error {
	if err := sanitize.ValidatePluginName(name); err != nil {
		return err
	}

	creds := c.Credentials()
	token, err := c.login(ctx, creds)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{"name": name})
	if _, err := c.do(ctx, http.MethodPost, creds.URL+uninstallPath, token, "application/json", bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("uninstalling plugin: %w", err)
	}

	if c.pluginsRoot != nil {
		if root, ok := c.pluginsRoot(); ok {
			dir, err := sanitize.ValidatePath(filepath.Join(root, name), root)
			if err == nil {
				if _, statErr := os.Stat(dir); statErr == nil {
					if err := os.RemoveAll(dir); err != nil {
						return fmt.Errorf("removing local plugin: %w", err)
					}
				}
			}
		}
	}

	c.logger.Info(ctx, "plugin uninstalled", zap.String("plugin", name))
	return nil
}

func (c *Client) login(ctx context.Context, creds Credentials) (string, error) {
	if !creds.Configured() {
		return "", ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]string{
		"username": creds.Username,
		"password": creds.PasswordMD5,
	})
	if err != nil {
		return "", fmt.Errorf("encoding login: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, creds.URL+loginPath, "", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.Token == "" {
		return "", errors.New("login: no token in response")
	}
	return data.Token, nil
}

func (c *Client) logHistory(ctx context.Context, creds Credentials, token string) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, creds.URL+logsPath, token, "", nil)
	if err != nil {
		return nil, err
	}

	var data struct {
		Logs []json.RawMessage `json:"logs"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("parsing logs: %w", err)
	}

	lines := make([]string, 0, len(data.Logs))
	for _, raw := range data.Logs {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			lines = append(lines, s)
			continue
		}
		var entry struct {
			Data    string `json:"data"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &entry) == nil {
			if entry.Data != "" {
				lines = append(lines, entry.Data)
			} else if entry.Message != "" {
				lines = append(lines, entry.Message)
			}
		}
	}
	return lines, nil
}

// do sends a request and decodes the response envelope. Non-2xx statuses
// and status "error" become errors.
func (c *Client) do(ctx context.Context, method, url, token, contentType string, body io.Reader) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if out.Status != "ok" {
		msg := out.Message
		if msg == "" {
			msg = "status " + out.Status
		}
		return nil, errors.New(msg)
	}
	return &out, nil
}

func multipartFile(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("reading archive: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
