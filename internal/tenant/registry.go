package tenant

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"
)

const bindingPrefix = "STORE_"

// StoreBindingName transforms a tenant id into its deterministic store
// binding: "STORE_" plus the uppercased id with non-alphanumerics
// replaced by underscores. "acme-co" binds to "STORE_ACME_CO".
func StoreBindingName(tenantID string) string {
	var b strings.Builder
	b.WriteString(bindingPrefix)
	for _, r := range strings.ToUpper(strings.TrimSpace(tenantID)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Registry holds the store handle provisioned for each tenant. Populated
// once at startup; read-only afterwards.
type Registry struct {
	stores map[string]*sql.DB
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*sql.DB)}
}

// Register binds a store handle under the tenant's binding name.
func (r *Registry) Register(tenantID string, db *sql.DB) {
	r.stores[StoreBindingName(tenantID)] = db
}

// Store returns the handle provisioned for a tenant.
func (r *Registry) Store(tenantID string) (*sql.DB, bool) {
	db, ok := r.stores[StoreBindingName(tenantID)]
	return db, ok
}

// Tenants returns the number of provisioned stores.
func (r *Registry) Tenants() int { return len(r.stores) }

// Each calls fn for every registered store. Used for schema bootstrap and
// shutdown.
func (r *Registry) Each(fn func(binding string, db *sql.DB) error) error {
	for binding, db := range r.stores {
		if err := fn(binding, db); err != nil {
			return err
		}
	}
	return nil
}

// RegistryFromEnv opens one pgx-backed handle per STORE_* DSN found in
// the environment. The variable name is the binding name, so provisioning
// a tenant is setting STORE_ACME to its DSN.
func RegistryFromEnv() (*Registry, error) {
	r := NewRegistry()
	for _, kv := range os.Environ() {
		name, dsn, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, bindingPrefix) {
			continue
		}
		dsn = strings.TrimSpace(dsn)
		if dsn == "" {
			continue
		}
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("tenant: open store %s: %w", name, err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		r.stores[name] = db
	}
	return r, nil
}

// ConfigFromEnv reads the resolution settings from the environment.
func ConfigFromEnv() Config {
	return Config{
		Enabled:       os.Getenv("GATEKIT_MULTI_TENANCY") == "on",
		Production:    os.Getenv("GATEKIT_ENV") == "production",
		DefaultTenant: os.Getenv("GATEKIT_DEFAULT_TENANT"),
	}
}

// Close closes every registered handle.
func (r *Registry) Close() {
	for _, db := range r.stores {
		_ = db.Close()
	}
}
