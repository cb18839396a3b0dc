package poolx

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/marcodd23/go-pool-core/pkg/configx"
	"github.com/marcodd23/go-pool-core/pkg/errorx"
)

//###################################
//#         Pool Registry           #
//###################################

// Registry - map from a canonical resource-identity key to a shared Pool, so
// repeated requests for the same database reuse one pool. Explicitly
// constructed and explicitly drained; nothing here relies on process exit.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]Pool
}

// NewRegistry - Registry constructor.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]Pool)}
}

// GetOrCreate - return the Pool registered under key, building it on first
// use. Idempotent: concurrent first-time requests for the same key never
// create two pools, construction is serialized under the registry lock.
func (r *Registry) GetOrCreate(key string, build func() (Pool, error)) (Pool, error) {
	r.mu.RLock()
	pool, ok := r.pools[key]
	r.mu.RUnlock()

	if ok {
		return pool, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A concurrent caller may have built the pool between the two locks.
	if pool, ok := r.pools[key]; ok {
		return pool, nil
	}

	pool, err := build()
	if err != nil {
		return nil, err
	}

	if pool == nil {
		return nil, errorx.NewGeneralError("pool builder returned nil for key %q", key)
	}

	r.pools[key] = pool

	return pool, nil
}

// Get - look up the Pool registered under key.
func (r *Registry) Get(key string) (Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pool, ok := r.pools[key]

	return pool, ok
}

// Len - number of registered pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.pools)
}

// Statuses - snapshot of every registered pool, keyed by canonical key.
func (r *Registry) Statuses() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make(map[string]Status, len(r.pools))
	for key, pool := range r.pools {
		statuses[key] = pool.Status()
	}

	return statuses
}

// Drain - drain every registered pool and forget it. Explicit teardown for
// application shutdown.
func (r *Registry) Drain(ctx context.Context) {
	r.mu.Lock()
	pools := make([]Pool, 0, len(r.pools))

	for _, pool := range r.pools {
		pools = append(pools, pool)
	}

	r.pools = make(map[string]Pool)
	r.mu.Unlock()

	for _, pool := range pools {
		pool.Drain(ctx)
	}
}

//###################################
//#        Canonical Key            #
//###################################

// canonicalKey - normalized connection identity. Two equivalent sets of
// connection parameters must serialize to the same key.
type canonicalKey struct {
	Scheme   string   `json:"scheme"`
	Host     string   `json:"host"`
	Port     int32    `json:"port"`
	User     string   `json:"user"`
	Password string   `json:"password"`
	Database string   `json:"database"`
	Options  []string `json:"options,omitempty"`
}

// defaultPorts - well-known scheme ports, applied when the configuration
// leaves the port unset so a defaulted and an explicit port make one key.
var defaultPorts = map[string]int32{
	"postgres":   5432,
	"postgresql": 5432,
}

// CanonicalKey - build the canonical resource-identity key for a set of
// connection parameters: scheme and host lowercased, default port applied,
// options sorted, so that equivalent configurations map to one registry
// entry.
func CanonicalKey(dbConf configx.DatabaseConfig) string {
	options := make([]string, 0, len(dbConf.Options))
	for name, value := range dbConf.Options {
		options = append(options, strings.TrimSpace(name)+"="+strings.TrimSpace(value))
	}

	sort.Strings(options)

	scheme := strings.ToLower(strings.TrimSpace(dbConf.Scheme))

	port := dbConf.Port
	if port == 0 {
		port = defaultPorts[scheme]
	}

	key := canonicalKey{
		Scheme:   scheme,
		Host:     strings.ToLower(strings.TrimSpace(dbConf.Host)),
		Port:     port,
		User:     dbConf.User,
		Password: dbConf.Password,
		Database: dbConf.DBName,
		Options:  options,
	}

	data, err := json.Marshal(key)
	if err != nil {
		return key.Scheme + "://" + key.User + "@" + key.Host + "/" + key.Database
	}

	return string(data)
}
