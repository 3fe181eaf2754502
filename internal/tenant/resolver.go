// Package tenant resolves which isolated data store an inbound request
// belongs to. Tenant selects a physical store; workspace (a logical
// partition within a store) is a separate axis owned by the session.
package tenant

import (
	"database/sql"
	"net"
	"strings"

	"gatekit.dev/internal/apperr"
)

// HeaderTenantID is the explicit tenant header. Earlier generations also
// used X-Workspace-Id; only this form is read.
const HeaderTenantID = "X-Tenant-Id"

// Context binds a resolved tenant to its store handle for the duration of
// one request. Never cached across requests.
type Context struct {
	TenantID string
	Store    *sql.DB
}

// Config controls resolution behavior.
type Config struct {
	// Enabled switches multi-tenancy on. When off every request binds the
	// default tenant, so the same pipeline serves single-tenant deployments.
	Enabled bool

	// Production enforces subdomain-derived tenancy and treats the
	// explicit header purely as a cross-check.
	Production bool

	// DefaultTenant is the tenant bound when multi-tenancy is disabled.
	DefaultTenant string
}

// Resolver derives the tenant from the request host and explicit header
// and binds the matching store handle.
type Resolver struct {
	cfg      Config
	registry *Registry
}

// NewResolver builds a resolver over the store registry.
func NewResolver(cfg Config, registry *Registry) *Resolver {
	cfg.DefaultTenant = normalize(cfg.DefaultTenant)
	if cfg.DefaultTenant == "" {
		cfg.DefaultTenant = "default"
	}
	return &Resolver{cfg: cfg, registry: registry}
}

// Resolve picks the tenant for a request. In production the subdomain is
// mandatory and the explicit header, if present, must agree with it; in
// other modes the header is an accepted fallback for tooling that cannot
// set arbitrary Host headers, but the subdomain still wins.
func (r *Resolver) Resolve(hostHeader, explicitHeader string) (Context, error) {
	if !r.cfg.Enabled {
		return r.bind(r.cfg.DefaultTenant)
	}

	subdomain := subdomainOf(hostHeader)
	header := normalize(explicitHeader)

	if r.cfg.Production {
		if subdomain == "" {
			return Context{}, apperr.TenantMismatch("tenant subdomain is required")
		}
		if header != "" && header != subdomain {
			return Context{}, apperr.TenantMismatch("tenant header disagrees with host")
		}
		return r.bind(subdomain)
	}

	switch {
	case subdomain != "" && header != "" && subdomain != header:
		return Context{}, apperr.TenantMismatch("tenant header disagrees with host")
	case subdomain != "":
		return r.bind(subdomain)
	case header != "":
		return r.bind(header)
	default:
		return Context{}, apperr.TenantMismatch("tenant could not be determined")
	}
}

func (r *Resolver) bind(tenantID string) (Context, error) {
	store, ok := r.registry.Store(tenantID)
	if !ok {
		// A missing handle is a provisioning error, not "tenant not found":
		// operators must provision a store per tenant out of band.
		return Context{}, apperr.TenantMismatch("no store provisioned for tenant " + tenantID)
	}
	return Context{TenantID: tenantID, Store: store}, nil
}

// subdomainOf extracts the left-most host label, lower-cased, with any
// port stripped. Hosts without at least three labels ("acme.example.com")
// yield no subdomain.
func subdomainOf(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	return labels[0]
}

func normalize(v string) string {
	return strings.TrimSpace(strings.ToLower(v))
}
