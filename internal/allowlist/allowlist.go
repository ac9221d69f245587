// Package allowlist decides which upstream origins the proxy may fetch.
//
// Targets are parsed with net/url and compared by scheme, host and effective
// port. The raw URL string is never matched directly, so userinfo
// ("http://allowed@evil.com") and suffix tricks ("http://allowed.evil.com")
// cannot satisfy a rule meant for another host.
package allowlist

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/config"
)

var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
}

// DefaultRules returns the built-in rule set used when nothing is configured.
func DefaultRules() []config.AllowRule {
	return []config.AllowRule{
		{Name: "lan", CIDR: "192.168.2.0/24"},
		{Name: "vps", Host: "82.29.59.80"},
		{Name: "comercial", Host: "comercial.techto.com.br"},
	}
}

// Matcher is an immutable, compiled set of allow rules. Rules are OR-ed.
type Matcher struct {
	rules []rule
}

type rule struct {
	name    string
	schemes []string
	host    string
	prefix  netip.Prefix
	pattern *regexp.Regexp
	ports   []portRange // empty means any port
}

type portRange struct {
	lo, hi int
}

// New builds the process-wide Matcher from config rules and the optional rules
// file. When neither yields a rule, DefaultRules is used.
func New(cfg *config.Config, logger *slog.Logger) (*Matcher, error) {
	logger = logger.With("component", "allowlist")

	rules := slices.Clone(cfg.Allowlist.Rules)
	if cfg.Allowlist.RulesFile != "" {
		fileRules, err := LoadFile(cfg.Allowlist.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("allowlist: %w", err)
		}
		rules = append(rules, fileRules...)
	}
	if len(rules) == 0 {
		logger.Warn("no allowlist rules configured; using built-in defaults")
		rules = DefaultRules()
	}

	m, err := Compile(rules)
	if err != nil {
		return nil, fmt.Errorf("allowlist: %w", err)
	}

	logger.Info("allowlist loaded", "rules", m.Len())
	return m, nil
}

// Compile validates rules and returns a Matcher for them.
func Compile(rules []config.AllowRule) (*Matcher, error) {
	m := &Matcher{rules: make([]rule, 0, len(rules))}
	for i, r := range rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule[%d]", i)
		}
		cr, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		m.rules = append(m.rules, cr)
	}
	return m, nil
}

func compileRule(r config.AllowRule) (rule, error) {
	set := 0
	for _, v := range []string{r.Host, r.CIDR, r.Pattern} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return rule{}, fmt.Errorf("exactly one of host, cidr, pattern must be set")
	}

	cr := rule{name: r.Name, schemes: []string{"http", "https"}}

	if len(r.Schemes) > 0 {
		cr.schemes = nil
		for _, s := range r.Schemes {
			s = strings.ToLower(strings.TrimSpace(s))
			if _, ok := defaultPorts[s]; !ok {
				return rule{}, fmt.Errorf("unsupported scheme %q", s)
			}
			cr.schemes = append(cr.schemes, s)
		}
	}

	switch {
	case r.Host != "":
		host := normalizeHost(r.Host)
		if host == "" || strings.ContainsAny(host, "/@?# ") {
			return rule{}, fmt.Errorf("invalid host %q", r.Host)
		}
		cr.host = host
	case r.CIDR != "":
		p, err := netip.ParsePrefix(strings.TrimSpace(r.CIDR))
		if err != nil {
			return rule{}, fmt.Errorf("invalid cidr: %w", err)
		}
		cr.prefix = p.Masked()
	case r.Pattern != "":
		re, err := regexp.Compile(`(?i)^(?:` + r.Pattern + `)$`)
		if err != nil {
			return rule{}, fmt.Errorf("invalid pattern: %w", err)
		}
		cr.pattern = re
	}

	ports, err := parsePorts(r.Ports)
	if err != nil {
		return rule{}, err
	}
	cr.ports = ports

	return cr, nil
}

// parsePorts accepts "", "*", "8080", "8000-8100" or a comma list of those.
func parsePorts(spec string) ([]portRange, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "*" {
		return nil, nil
	}

	var out []portRange
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := parsePort(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid ports %q: %w", spec, err)
		}
		to := from
		if isRange {
			if to, err = parsePort(hi); err != nil {
				return nil, fmt.Errorf("invalid ports %q: %w", spec, err)
			}
			if to < from {
				return nil, fmt.Errorf("invalid ports %q: range %d-%d is reversed", spec, from, to)
			}
		}
		out = append(out, portRange{lo: from, hi: to})
	}
	return out, nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("port %q is not a number", s)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range", n)
	}
	return n, nil
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Check parses raw and reports whether it is allowed. The parsed URL is
// returned even when the target is rejected, unless parsing failed.
func (m *Matcher) Check(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	return u, m.AllowURL(u)
}

// AllowURL reports whether u matches at least one rule.
func (m *Matcher) AllowURL(u *url.URL) bool {
	return m.Match(u) != ""
}

// Match returns the name of the first rule u satisfies, or "" when none does.
func (m *Matcher) Match(u *url.URL) string {
	o, ok := originOf(u)
	if !ok {
		return ""
	}
	for i := range m.rules {
		if m.rules[i].matches(o) {
			return m.rules[i].name
		}
	}
	return ""
}

type origin struct {
	scheme string
	host   string
	port   int
}

// String renders the canonical scheme://host:port form that patterns see.
func (o origin) String() string {
	return o.scheme + "://" + net.JoinHostPort(o.host, strconv.Itoa(o.port))
}

func originOf(u *url.URL) (origin, bool) {
	if u == nil {
		return origin{}, false
	}
	scheme := strings.ToLower(u.Scheme)
	def, ok := defaultPorts[scheme]
	if !ok {
		return origin{}, false
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return origin{}, false
	}
	port := def
	if p := u.Port(); p != "" {
		n, err := parsePort(p)
		if err != nil {
			return origin{}, false
		}
		port = n
	}
	return origin{scheme: scheme, host: host, port: port}, true
}

func normalizeHost(h string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
}

func (r *rule) matches(o origin) bool {
	if !slices.Contains(r.schemes, o.scheme) {
		return false
	}
	if !r.portAllowed(o.port) {
		return false
	}

	switch {
	case r.host != "":
		return o.host == r.host
	case r.prefix.IsValid():
		addr, err := netip.ParseAddr(o.host)
		if err != nil {
			return false
		}
		return r.prefix.Contains(addr.Unmap())
	case r.pattern != nil:
		return r.pattern.MatchString(o.String())
	}
	return false
}

func (r *rule) portAllowed(port int) bool {
	if len(r.ports) == 0 {
		return true
	}
	for _, pr := range r.ports {
		if port >= pr.lo && port <= pr.hi {
			return true
		}
	}
	return false
}
