// Package cachepolicy maps content types to browser caching headers.
package cachepolicy

import (
	"strconv"
	"strings"
	"time"
)

// DefaultKey names the policy used when no content type matches.
const DefaultKey = "default"

// Policy is a set of Cache-Control directives plus an optional absolute expiry.
// Pointer fields distinguish "unset" from an explicit zero.
type Policy struct {
	MaxAge          *int       `yaml:"max_age,omitempty"`
	SMaxAge         *int       `yaml:"s_maxage,omitempty"`
	Public          bool       `yaml:"public,omitempty"`
	Private         bool       `yaml:"private,omitempty"`
	NoCache         bool       `yaml:"no_cache,omitempty"`
	NoStore         bool       `yaml:"no_store,omitempty"`
	MustRevalidate  bool       `yaml:"must_revalidate,omitempty"`
	ProxyRevalidate bool       `yaml:"proxy_revalidate,omitempty"`
	Expires         *time.Time `yaml:"expires,omitempty"`
}

// CacheControl renders the directives in a fixed order, separated by ", ".
// It returns "" when no directive is set.
func (p *Policy) CacheControl() string {
	if p == nil {
		return ""
	}

	var parts []string
	if p.MaxAge != nil {
		parts = append(parts, "max-age="+strconv.Itoa(*p.MaxAge))
	}
	if p.SMaxAge != nil {
		parts = append(parts, "s-maxage="+strconv.Itoa(*p.SMaxAge))
	}

	flags := []struct {
		set  bool
		name string
	}{
		{p.Public, "public"},
		{p.Private, "private"},
		{p.NoCache, "no-cache"},
		{p.NoStore, "no-store"},
		{p.MustRevalidate, "must-revalidate"},
		{p.ProxyRevalidate, "proxy-revalidate"},
	}
	for _, f := range flags {
		if f.set {
			parts = append(parts, f.name)
		}
	}

	return strings.Join(parts, ", ")
}

// Resolver looks up policies by content type.
type Resolver struct {
	policies map[string]*Policy
}

// NewResolver builds a resolver from a content type keyed table. The entry
// under DefaultKey, if any, is the fallback.
func NewResolver(policies map[string]Policy) *Resolver {
	r := &Resolver{policies: make(map[string]*Policy, len(policies))}
	for k, v := range policies {
		v := v
		r.policies[strings.ToLower(strings.TrimSpace(k))] = &v
	}
	return r
}

// For returns the policy for contentType. Parameters such as
// "; charset=utf-8" are ignored. Lookup order is exact match, then the
// "type/*" family entry, then the default. It returns nil when nothing applies.
func (r *Resolver) For(contentType string) *Policy {
	if r == nil {
		return nil
	}

	mediaType := contentType
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	if p, ok := r.policies[mediaType]; ok && mediaType != "" {
		return p
	}
	if i := strings.IndexByte(mediaType, '/'); i > 0 {
		if p, ok := r.policies[mediaType[:i]+"/*"]; ok {
			return p
		}
	}
	return r.policies[DefaultKey]
}
