// Package providers holds the static provider table and path router.
//
// DESIGN: Providers form a small closed set of variants, each carrying
// {upstream host, auth scheme, header name, pass-through allowlist, usage
// field mapping}, selected by a lookup on the first path segment after
// /proxy/. Adding a provider means adding a table entry, not code. The
// router performs no network I/O; it is a pure lookup.
package providers

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/covegate/secrets-proxy/internal/config"
	"github.com/covegate/secrets-proxy/internal/usage"
)

// RoutePrefix is the inbound path prefix the proxy is mounted under.
const RoutePrefix = "/proxy/"

// AuthScheme selects how the provider credential is attached upstream.
type AuthScheme string

const (
	// AuthAPIKey sends the raw key in a provider-named header.
	AuthAPIKey AuthScheme = "api_key"
	// AuthBearer sends "Authorization: Bearer <key>".
	AuthBearer AuthScheme = "bearer"
	// AuthSigV4 signs the outbound request with AWS SigV4 (Bedrock).
	AuthSigV4 AuthScheme = "aws_sigv4"
)

// Provider is one resolved entry of the provider table.
type Provider struct {
	Name        string
	Upstream    *url.URL
	AuthScheme  AuthScheme
	AuthHeader  string
	APIKey      string // resolved at startup; empty = not provisioned
	PassHeaders []string
	Usage       usage.Fields
}

// Configured reports whether the provider credential is available.
// SigV4 providers carry no static key; the signer decides readiness.
func (p *Provider) Configured() bool {
	return p.AuthScheme == AuthSigV4 || p.APIKey != ""
}

// Registry maps provider keys to their table entries.
type Registry struct {
	byName map[string]*Provider
}

// NewRegistry resolves the configured provider table. Credentials are
// looked up once at construction; a provider with no key stays in the
// table so requests to it fail with a configuration denial rather than
// an unknown-provider denial.
func NewRegistry(cfgs map[string]config.ProviderConfig) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Provider, len(cfgs))}
	for name, pc := range cfgs {
		u, err := url.Parse(pc.Upstream)
		if err != nil {
			return nil, fmt.Errorf("provider %s: invalid upstream %q: %w", name, pc.Upstream, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("provider %s: upstream %q must be an absolute URL", name, pc.Upstream)
		}
		r.byName[name] = &Provider{
			Name:        name,
			Upstream:    u,
			AuthScheme:  AuthScheme(pc.AuthScheme),
			AuthHeader:  pc.AuthHeader,
			APIKey:      pc.ResolveAPIKey(),
			PassHeaders: append([]string(nil), pc.PassHeaders...),
			Usage: usage.Fields{
				Input:  pc.Usage.Input,
				Output: pc.Usage.Output,
				Model:  pc.Usage.Model,
			},
		}
	}
	return r, nil
}

// Get returns a provider by key.
func (r *Registry) Get(name string) (*Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names returns the configured provider keys (for startup logging).
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// Route splits an inbound path into provider and remaining upstream path.
// "/proxy/anthropic/v1/messages" -> (anthropic, "/v1/messages"). The
// second return is always rooted with "/". ok is false for paths outside
// the prefix or with an unknown provider key.
func (r *Registry) Route(path string) (*Provider, string, bool) {
	if !strings.HasPrefix(path, RoutePrefix) {
		return nil, "", false
	}
	trimmed := strings.TrimPrefix(path, RoutePrefix)
	name, rest, _ := strings.Cut(trimmed, "/")
	if name == "" {
		return nil, "", false
	}
	p, ok := r.byName[name]
	if !ok {
		return nil, "", false
	}
	return p, "/" + rest, true
}
