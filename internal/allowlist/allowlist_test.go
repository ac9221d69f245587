package allowlist

import (
	"bytes"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/config"
)

func TestDefaultRules(t *testing.T) {
	m, err := Compile(DefaultRules())
	require.NoError(t, err)
	require.Equal(t, 3, m.Len())

	tests := []struct {
		name   string
		target string
		want   bool
	}{
		{"lan http", "http://192.168.2.5/", true},
		{"lan https with port", "https://192.168.2.254:8443/app", true},
		{"lan upper-case scheme", "HTTPS://192.168.2.5", true},
		{"lan network address", "http://192.168.2.0", true},
		{"lan outside block", "http://192.168.3.5/", false},
		{"lan ipv4-mapped ipv6", "http://[::ffff:192.168.2.7]/", true},
		{"vps any port", "http://82.29.59.80:3000/dashboard", true},
		{"vps neighbour", "http://82.29.59.81/", false},
		{"comercial", "https://comercial.techto.com.br/login?next=/", true},
		{"comercial mixed case host", "https://Comercial.Techto.COM.br", true},
		{"comercial trailing dot", "https://comercial.techto.com.br./", true},
		{"comercial custom port", "http://comercial.techto.com.br:8080", true},

		// Prefix-regex bypasses that structural matching closes.
		{"userinfo smuggling", "http://comercial.techto.com.br@evil.com/", false},
		{"lan userinfo smuggling", "http://192.168.2.5@evil.com/", false},
		{"suffix domain", "https://comercial.techto.com.br.evil.com/", false},
		{"ip prefix hostname", "http://192.168.2.5.evil.com/", false},
		{"sub-domain", "https://www.comercial.techto.com.br/", false},

		{"ftp scheme", "ftp://192.168.2.5/", false},
		{"javascript scheme", "javascript:alert(1)", false},
		{"no scheme", "192.168.2.5/", false},
		{"opaque", "http:192.168.2.5", false},
		{"empty", "", false},
		{"unparseable", "http://[::1", false},
		{"other host", "https://example.com/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := m.Check(tt.target)
			assert.Equal(t, tt.want, got, "Check(%q)", tt.target)
		})
	}
}

func TestCompile_Schemes(t *testing.T) {
	m, err := Compile([]config.AllowRule{
		{Name: "tls-only", Host: "intranet.example", Schemes: []string{"HTTPS"}},
	})
	require.NoError(t, err)

	_, ok := m.Check("https://intranet.example/")
	assert.True(t, ok)
	_, ok = m.Check("http://intranet.example/")
	assert.False(t, ok)
}

func TestCompile_Ports(t *testing.T) {
	m, err := Compile([]config.AllowRule{
		{Name: "web", Host: "intranet.example", Ports: "80, 8000-8010"},
	})
	require.NoError(t, err)

	tests := []struct {
		target string
		want   bool
	}{
		{"http://intranet.example/", true},       // default port 80
		{"https://intranet.example/", false},     // default port 443
		{"http://intranet.example:8000/", true},  // range start
		{"https://intranet.example:8010/", true}, // range end
		{"http://intranet.example:8011/", false}, // past range
		{"http://intranet.example:443/", false},  // explicit, not listed
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			_, got := m.Check(tt.target)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Pattern(t *testing.T) {
	// Legacy-style expression; the canonical origin always carries the port.
	m, err := Compile([]config.AllowRule{
		{Name: "legacy", Pattern: `http(s)?://(192\.168\.2\.\d+)(:\d+)?`},
	})
	require.NoError(t, err)

	tests := []struct {
		target string
		want   bool
	}{
		{"http://192.168.2.5/", true},
		{"HTTPS://192.168.2.5:8443/x", true},
		{"http://192.168.2.5.evil.com/", false},
		{"http://192.168.2.5@evil.com/", false},
		{"http://evil.com/?u=http://192.168.2.5", false},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			_, got := m.Check(tt.target)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		rule config.AllowRule
	}{
		{"nothing set", config.AllowRule{Name: "empty"}},
		{"host and cidr", config.AllowRule{Host: "a.example", CIDR: "10.0.0.0/8"}},
		{"bad cidr", config.AllowRule{CIDR: "10.0.0.0/33"}},
		{"bad pattern", config.AllowRule{Pattern: "http://(unclosed"}},
		{"host with path", config.AllowRule{Host: "a.example/path"}},
		{"host with userinfo", config.AllowRule{Host: "user@a.example"}},
		{"bad scheme", config.AllowRule{Host: "a.example", Schemes: []string{"ftp"}}},
		{"bad port", config.AllowRule{Host: "a.example", Ports: "http"}},
		{"port out of range", config.AllowRule{Host: "a.example", Ports: "70000"}},
		{"reversed range", config.AllowRule{Host: "a.example", Ports: "9000-8000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]config.AllowRule{tt.rule})
			assert.Error(t, err)
		})
	}
}

func TestMatch_ReturnsRuleName(t *testing.T) {
	m, err := Compile([]config.AllowRule{
		{Name: "first", Host: "a.example"},
		{CIDR: "10.0.0.0/8"},
	})
	require.NoError(t, err)

	u, _ := url.Parse("http://a.example/")
	assert.Equal(t, "first", m.Match(u))

	u, _ = url.Parse("http://10.1.2.3/")
	assert.Equal(t, "rule[1]", m.Match(u))

	u, _ = url.Parse("http://b.example/")
	assert.Empty(t, m.Match(u))
	assert.Empty(t, m.Match(nil))
}

func TestNew_FallsBackToDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	m, err := New(&config.Config{}, logger)
	require.NoError(t, err)

	assert.Equal(t, len(DefaultRules()), m.Len())
	assert.Contains(t, buf.String(), "built-in defaults")
}

func TestNew_MergesConfigAndFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "erp.yaml"), []byte(`
- name: erp
  host: erp.example
  schemes: [https]
`), 0o644))

	cfg := &config.Config{
		Allowlist: config.AllowlistConfig{
			RulesFile: dir,
			Rules:     []config.AllowRule{{Name: "lan", CIDR: "10.0.0.0/8"}},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	m, err := New(cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	_, ok := m.Check("https://erp.example/")
	assert.True(t, ok)
	_, ok = m.Check("http://192.168.2.5/")
	assert.False(t, ok, "defaults must not apply when rules are configured")
}

func TestNew_InvalidRule(t *testing.T) {
	cfg := &config.Config{
		Allowlist: config.AllowlistConfig{
			Rules: []config.AllowRule{{Name: "broken", CIDR: "not-a-cidr"}},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := New(cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"broken"`)
}
