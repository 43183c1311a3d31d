package cmdutil

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// EnvSource tracks where an environment variable came from.
type EnvSource string

const (
	EnvSourceOS      EnvSource = "os"      // os.Environ()
	EnvSourceDotEnv  EnvSource = "dotenv"  // envFile
	EnvSourceConfig  EnvSource = "config"  // app.env
	EnvSourceDevloop EnvSource = "devloop" // port, url and mode variables
)

// EnvEntry is a single variable with the layer that set it.
type EnvEntry struct {
	Key    string
	Value  string
	Source EnvSource
}

// EnvScope is a layered environment. Later Set calls win; the process
// environment is never modified.
type EnvScope struct {
	mu      sync.RWMutex
	entries map[string]EnvEntry
}

// NewEnvScope creates an empty scope, seeded with os.Environ() when includeOS
// is true.
func NewEnvScope(includeOS bool) *EnvScope {
	e := &EnvScope{entries: make(map[string]EnvEntry)}
	if includeOS {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
				e.entries[k] = EnvEntry{Key: k, Value: v, Source: EnvSourceOS}
			}
		}
	}
	return e
}

// Set adds or replaces a variable.
func (e *EnvScope) Set(key, value string, source EnvSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries[key] = EnvEntry{Key: key, Value: value, Source: source}
}

// SetAll applies every pair of vars with the same source.
func (e *EnvScope) SetAll(vars map[string]string, source EnvSource) {
	for k, v := range vars {
		e.Set(k, v, source)
	}
}

// Get returns the value of key.
func (e *EnvScope) Get(key string) (string, bool) {
	entry, ok := e.GetEntry(key)
	return entry.Value, ok
}

// GetEntry returns key together with its source.
func (e *EnvScope) GetEntry(key string) (EnvEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.entries[key]
	return entry, ok
}

// ToSlice returns KEY=value strings sorted by key, ready for exec.Cmd.Env.
func (e *EnvScope) ToSlice() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := lo.MapToSlice(e.entries, func(k string, entry EnvEntry) string {
		return k + "=" + entry.Value
	})
	sort.Strings(out)
	return out
}

// Lookup returns a lookup function suitable for SplitCommand.
func (e *EnvScope) Lookup() func(string) string {
	return func(key string) string {
		v, _ := e.Get(key)
		return v
	}
}

// LoadEnvFile reads a dotenv file into the scope. An empty path is a no-op.
func (e *EnvScope) LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	e.SetAll(vars, EnvSourceDotEnv)
	return nil
}
