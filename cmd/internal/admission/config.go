package admission

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the endpoint key for paths no rule matches.
const DefaultKey = "default"

// EndpointRule assigns limits to every path starting with Prefix.
type EndpointRule struct {
	Prefix string `yaml:"prefix"`
	Limits `yaml:",inline"`
}

// Config configures a Controller.
type Config struct {
	Client          Limits
	EndpointDefault Limits
	Endpoints       []EndpointRule
	SweepInterval   time.Duration

	// TrustProxy honors X-Forwarded-For / X-Real-IP.
	TrustProxy bool
}

// DefaultClientLimits is the client-scope pair.
func DefaultClientLimits() Limits { return Limits{PerMinute: 60, PerHour: 1000} }

// DefaultEndpointLimits is the fallback endpoint pair.
func DefaultEndpointLimits() Limits { return Limits{PerMinute: 6000, PerHour: 10000} }

// DefaultEndpoints is the historical per-prefix table.
func DefaultEndpoints() []EndpointRule {
	return []EndpointRule{
		{Prefix: "/api/user/login", Limits: Limits{PerMinute: 1000, PerHour: 10000}},
		{Prefix: "/api/user/register", Limits: Limits{PerMinute: 500, PerHour: 2000}},
		{Prefix: "/api/user/", Limits: Limits{PerMinute: 3000, PerHour: 5000}},
		{Prefix: "/api/teams/", Limits: Limits{PerMinute: 2000, PerHour: 3000}},
		{Prefix: "/api/articles/", Limits: Limits{PerMinute: 4000, PerHour: 8000}},
		{Prefix: "/api/competitions/", Limits: Limits{PerMinute: 2000, PerHour: 4000}},
		{Prefix: "/api/recruitments/", Limits: Limits{PerMinute: 2000, PerHour: 3000}},
	}
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Client:          DefaultClientLimits(),
		EndpointDefault: DefaultEndpointLimits(),
		Endpoints:       DefaultEndpoints(),
		SweepInterval:   DefaultSweepInterval,
	}
}

// ParseLimits parses "per_minute:per_hour". A zero value leaves that
// horizon unlimited; "0:1000" caps only the hour.
func ParseLimits(raw string) (Limits, error) {
	minS, hourS, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return Limits{}, fmt.Errorf("admission: limits %q: want per_minute:per_hour", raw)
	}
	m, err := strconv.Atoi(strings.TrimSpace(minS))
	if err != nil || m < 0 {
		return Limits{}, fmt.Errorf("admission: limits %q: bad per-minute value", raw)
	}
	h, err := strconv.Atoi(strings.TrimSpace(hourS))
	if err != nil || h < 0 {
		return Limits{}, fmt.Errorf("admission: limits %q: bad per-hour value", raw)
	}
	return Limits{PerMinute: m, PerHour: h}, nil
}

// ParseEndpoints parses "prefix=min:hour,prefix=min:hour".
func ParseEndpoints(raw string) ([]EndpointRule, error) {
	var out []EndpointRule
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		prefix, pair, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("admission: endpoint %q: want prefix=min:hour", item)
		}
		lim, err := ParseLimits(pair)
		if err != nil {
			return nil, err
		}
		rule, err := newRule(prefix, lim)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

type endpointsFile struct {
	Default   *Limits        `yaml:"default"`
	Endpoints []EndpointRule `yaml:"endpoints"`
}

// LoadEndpointsFile reads endpoint rules (and optionally the default pair)
// from YAML:
//
//	default: {per_minute: 6000, per_hour: 10000}
//	endpoints:
//	  - {prefix: /api/user/login, per_minute: 1000, per_hour: 10000}
//
// An omitted or zero per_minute/per_hour means unlimited for that horizon.
func LoadEndpointsFile(path string) ([]EndpointRule, *Limits, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("admission: endpoints file: %w", err)
	}
	var f endpointsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, nil, fmt.Errorf("admission: endpoints file: %w", err)
	}
	out := make([]EndpointRule, 0, len(f.Endpoints))
	for _, r := range f.Endpoints {
		rule, err := newRule(r.Prefix, r.Limits)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, rule)
	}
	return out, f.Default, nil
}

func newRule(prefix string, lim Limits) (EndpointRule, error) {
	prefix = strings.TrimSpace(prefix)
	if !strings.HasPrefix(prefix, "/") {
		return EndpointRule{}, fmt.Errorf("admission: endpoint prefix %q must start with /", prefix)
	}
	if lim.PerMinute < 0 || lim.PerHour < 0 {
		return EndpointRule{}, fmt.Errorf("admission: endpoint %q: negative limit", prefix)
	}
	return EndpointRule{Prefix: prefix, Limits: lim}, nil
}

// matcher resolves a path to its endpoint key by longest prefix.
type matcher struct {
	rules []EndpointRule // longest prefix first
	def   Limits
}

func newMatcher(rules []EndpointRule, def Limits) matcher {
	sorted := append([]EndpointRule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return matcher{rules: sorted, def: def}
}

func (m matcher) match(path string) (string, Limits) {
	for _, r := range m.rules {
		if strings.HasPrefix(path, r.Prefix) {
			return r.Prefix, r.Limits
		}
	}
	return DefaultKey, m.def
}
