package installer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codemage/internal/config"
)

func newClient(t *testing.T, url, password string, opts ...Option) *Client {
	t.Helper()
	cfg := config.InstallerConfig{
		Enabled:         true,
		URL:             url,
		Username:        DefaultUsername,
		CredentialsFile: filepath.Join(t.TempDir(), "credentials.json"),
	}
	if password != "" {
		cfg.PasswordMD5 = config.Secret(MD5Hex(password))
	}
	return New(cfg, nil, opts...)
}

func makePluginDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "astrbot_plugin_weather")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("pass\n"), 0o644))
	return dir
}

func TestClient_Configured(t *testing.T) {
	assert.False(t, newClient(t, "http://h", "").Configured())
	assert.True(t, newClient(t, "http://h", "pw").Configured())

	c := newClient(t, "http://h", "pw")
	c.cfg.Enabled = false
	assert.False(t, c.Configured())
}

func TestClient_SavedCredentialsTakePrecedence(t *testing.T) {
	c := newClient(t, "http://config-host", "config-pw")

	_, err := c.Store().SetCredentials("saved-host:6185/", "admin", "saved-pw")
	require.NoError(t, err)

	creds := c.Credentials()
	assert.Equal(t, "http://saved-host:6185", creds.URL)
	assert.Equal(t, "admin", creds.Username)
	assert.Equal(t, MD5Hex("saved-pw"), creds.PasswordMD5)
}

func TestClient_InstallDir(t *testing.T) {
	host, srv := newFakeHost(t, "secret")
	c := newClient(t, srv.URL, "secret")

	res, err := c.InstallDir(context.Background(), makePluginDir(t))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "astrbot_plugin_weather", res.PluginName)
	assert.Equal(t, "安装成功", res.Message)
	assert.True(t, host.uploaded("astrbot_plugin_weather.zip"))
}

func TestClient_InstallLoginFailure(t *testing.T) {
	_, srv := newFakeHost(t, "secret")
	c := newClient(t, srv.URL, "wrong")

	archive, err := c.Package(context.Background(), makePluginDir(t))
	require.NoError(t, err)
	defer RemoveArchive(archive)

	res, err := c.Install(context.Background(), archive, "astrbot_plugin_weather")
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "用户名或密码错误")
}

func TestClient_InstallRejectedByHost(t *testing.T) {
	host, srv := newFakeHost(t, "secret")
	host.setUploadError("插件已存在")
	c := newClient(t, srv.URL, "secret")

	res, err := c.InstallDir(context.Background(), makePluginDir(t))
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "插件已存在")
}

func TestClient_NotConfigured(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1", "")
	_, err := c.ListRemote(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_CheckStatus(t *testing.T) {
	host, srv := newFakeHost(t, "secret")
	host.setPlugins(
		map[string]any{"name": "astrbot_plugin_weather", "activated": true},
		map[string]any{"name": "astrbot_plugin_other", "activated": false},
	)
	c := newClient(t, srv.URL, "secret")

	report, err := c.CheckStatus(context.Background(), "astrbot_plugin_weather")
	require.NoError(t, err)
	assert.True(t, report.Installed)
	assert.True(t, report.Activated)
	assert.False(t, report.HasErrors)

	host.setLogs(
		"[INFO] astrbot_plugin_weather loaded",
		map[string]any{"data": "[ERROR] astrbot_plugin_weather: Traceback (most recent call last)"},
		"[ERROR] astrbot_plugin_other failed",
	)
	report, err = c.CheckStatus(context.Background(), "astrbot_plugin_weather")
	require.NoError(t, err)
	assert.True(t, report.HasErrors)
	assert.Equal(t, []string{"[ERROR] astrbot_plugin_weather: Traceback (most recent call last)"}, report.ErrorLogs)

	report, err = c.CheckStatus(context.Background(), "astrbot_plugin_other")
	require.NoError(t, err)
	assert.True(t, report.Installed)
	assert.False(t, report.Activated)
	assert.True(t, report.HasErrors)

	report, err = c.CheckStatus(context.Background(), "astrbot_plugin_missing")
	require.NoError(t, err)
	assert.False(t, report.Installed)
	assert.True(t, report.HasErrors)
}

func TestClient_CheckStatusCapsLogs(t *testing.T) {
	host, srv := newFakeHost(t, "secret")
	host.setPlugins(map[string]any{"name": "astrbot_plugin_noisy", "activated": true})
	logs := make([]any, 0, 30)
	for i := 0; i < 30; i++ {
		logs = append(logs, "ERROR astrbot_plugin_noisy "+strings.Repeat("x", i))
	}
	host.setLogs(logs...)
	c := newClient(t, srv.URL, "secret")

	report, err := c.CheckStatus(context.Background(), "astrbot_plugin_noisy")
	require.NoError(t, err)
	assert.Len(t, report.ErrorLogs, maxErrorLogs)
}

func TestClient_Uninstall(t *testing.T) {
	host, srv := newFakeHost(t, "secret")
	root := t.TempDir()
	local := filepath.Join(root, "astrbot_plugin_weather")
	require.NoError(t, os.MkdirAll(local, 0o755))

	c := newClient(t, srv.URL, "secret", WithPluginsRoot(func() (string, bool) { return root, true }))

	require.NoError(t, c.Uninstall(context.Background(), "astrbot_plugin_weather"))
	assert.Equal(t, []string{"astrbot_plugin_weather"}, host.uninstalledNames())
	assert.NoDirExists(t, local)

	assert.Error(t, c.Uninstall(context.Background(), "../etc"))
}

func testInstallerConfig(t *testing.T) config.InstallerConfig {
	t.Helper()
	return config.InstallerConfig{Enabled: true, CredentialsFile: filepath.Join(t.TempDir(), "c.json")}
}
