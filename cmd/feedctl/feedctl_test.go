package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/unkn0wn-root/statesync"
	"github.com/unkn0wn-root/statesync/internal/fakeapi"
)

type harness struct {
	fake    *fakeapi.Server
	ts      *httptest.Server
	dir     string
	session string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := fakeapi.New(fakeapi.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, seedDemo(fake))
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)
	dir := t.TempDir()
	return &harness{fake: fake, ts: ts, dir: dir, session: filepath.Join(dir, "session")}
}

// config writes a feedctl.yaml and returns its path.
func (h *harness) config(t *testing.T, provider, backend string) string {
	t.Helper()
	path := filepath.Join(h.dir, fmt.Sprintf("feedctl-%s-%s.yaml", provider, backend))
	yaml := fmt.Sprintf(`api:
  url: %s
  session_file: %s
cache:
  provider: %s
  sqlite_path: %s
  redis_addr: 127.0.0.1:1
log:
  backend: %s
  level: warn
`, h.ts.URL, h.session, provider, filepath.Join(h.dir, "cache.db"), backend)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func execute(t *testing.T, cfgPath string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)
	cfg := h.config(t, "none", "zap")

	out, _, err := execute(t, cfg, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "not signed in\n", out)

	out, _, err = execute(t, cfg, "login", "--username", "ada", "--password", demoPassword)
	require.NoError(t, err)
	assert.Equal(t, "signed in as @ada\n", out)
	assert.NotEmpty(t, readSession(h.session))

	out, _, err = execute(t, cfg, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada Lovelace (@ada)")
	assert.Contains(t, out, "Joined ")

	out, _, err = execute(t, cfg, "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out successfully\n", out)
	_, statErr := os.Stat(h.session)
	assert.True(t, os.IsNotExist(statErr))

	out, _, err = execute(t, cfg, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "not signed in\n", out)
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)
	_, _, err := execute(t, h.config(t, "none", "zap"), "login", "--username", "ada", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid username or password", err.Error())
}

func TestSignupValidationPrintsFields(t *testing.T) {
	h := newHarness(t)
	_, errOut, err := execute(t, h.config(t, "none", "zap"), "signup",
		"--email", "nope", "--username", "zed", "--full-name", "Zed", "--password", "abc12!")
	require.EqualError(t, err, "signup form rejected")
	assert.Contains(t, errOut, "email: Please enter a valid email.")
}

func TestSignupThenPostAndList(t *testing.T) {
	h := newHarness(t)
	cfg := h.config(t, "none", "logrus")

	out, _, err := execute(t, cfg, "signup",
		"--email", "zed@example.com", "--username", "zed", "--full-name", "Zed Shaw", "--password", "abc12!")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as @zed")

	out, _, err = execute(t, cfg, "post", "hello from zed")
	require.NoError(t, err)
	assert.Contains(t, out, "created post ")

	out, _, err = execute(t, cfg, "--json", "posts", "--feed", "posts", "--arg", "zed")
	require.NoError(t, err)
	var posts []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "hello from zed", posts[0]["text"])

	out, _, err = execute(t, cfg, "posts", "--feed", "following")
	require.NoError(t, err)
	assert.Equal(t, "No posts in this tab.\n", out)

	_, _, err = execute(t, cfg, "posts", "--feed", "trending")
	assert.Error(t, err)
}

func TestFollowAndNotifications(t *testing.T) {
	h := newHarness(t)
	cfg := h.config(t, "none", "zerolog")

	_, _, err := execute(t, cfg, "login", "--username", "bob", "--password", demoPassword)
	require.NoError(t, err)
	out, _, err := execute(t, cfg, "--json", "whoami")
	require.NoError(t, err)
	var bob map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &bob))

	_, _, err = execute(t, cfg, "login", "--username", "ada", "--password", demoPassword)
	require.NoError(t, err)
	out, _, err = execute(t, cfg, "follow", bob["_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "User followed successfully\n", out)

	out, _, err = execute(t, cfg, "profile", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "0 following  1 followers")
	assert.Contains(t, out, "(following)")

	out, _, err = execute(t, cfg, "suggested")
	require.NoError(t, err)
	assert.Contains(t, out, "@cid")
	assert.NotContains(t, out, "@bob")

	_, _, err = execute(t, cfg, "login", "--username", "bob", "--password", demoPassword)
	require.NoError(t, err)
	out, _, err = execute(t, cfg, "notifications")
	require.NoError(t, err)
	assert.Equal(t, "* @ada followed you\n", out)

	out, _, err = execute(t, cfg, "notifications", "--clear")
	require.NoError(t, err)
	assert.Equal(t, "Notifications deleted successfully\n", out)
	out, _, err = execute(t, cfg, "notifications")
	require.NoError(t, err)
	assert.Equal(t, "no notifications\n", out)
}

func TestProfileWatch(t *testing.T) {
	h := newHarness(t)
	cfg := h.config(t, "none", "slog")
	_, _, err := execute(t, cfg, "login", "--username", "ada", "--password", demoPassword)
	require.NoError(t, err)

	out, _, err := execute(t, cfg, "--json", "profile", "cid", "--watch", "--updates", "1")
	require.NoError(t, err)
	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "success", st["status"])
	assert.Equal(t, "cid", st["user"].(map[string]any)["username"])
}

func TestProvidersAndBackends(t *testing.T) {
	h := newHarness(t)
	for _, provider := range []string{"none", "ristretto", "bigcache", "sqlite"} {
		for _, backend := range []string{"zap", "logrus", "zerolog", "slog"} {
			t.Run(provider+"_"+backend, func(t *testing.T) {
				out, _, err := execute(t, h.config(t, provider, backend), "whoami")
				require.NoError(t, err)
				assert.Equal(t, "not signed in\n", out)
			})
		}
	}
}

func TestWiringErrors(t *testing.T) {
	h := newHarness(t)

	_, _, err := execute(t, h.config(t, "memcached", "zap"), "whoami")
	assert.ErrorContains(t, err, `unknown cache provider "memcached"`)

	_, _, err = execute(t, h.config(t, "none", "glog"), "whoami")
	assert.ErrorContains(t, err, `unknown log backend "glog"`)

	_, _, err = execute(t, h.config(t, "redis", "zap"), "whoami")
	assert.ErrorContains(t, err, "redis 127.0.0.1:1")

	_, _, err = execute(t, filepath.Join(h.dir, "missing.yaml"), "whoami")
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FEEDCTL_API_URL", "http://api.test")
	t.Setenv("FEEDCTL_CACHE_PROVIDER", "SQLite")
	t.Setenv("FEEDCTL_CACHE_PERSIST_TTL", "1h")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "http://api.test", cfg.APIURL)
	assert.Equal(t, "sqlite", cfg.Provider)
	assert.Equal(t, time.Hour, cfg.PersistTTL)
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, "zap", cfg.LogBackend)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
}

func TestSessionFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session")
	assert.Empty(t, readSession(path))
	require.NoError(t, writeSession(path, "tok"))
	assert.Equal(t, "tok", readSession(path))
	require.NoError(t, writeSession(path, ""))
	require.NoError(t, writeSession(path, ""))
	assert.Empty(t, readSession(path))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, fakeapi.New(), statesync.NopLogger{}) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/auth/me")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
