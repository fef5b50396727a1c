package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaharia-lab/notifyd/internal/notification"
)

// DispatchPolicy is the dispatch configuration: builder routes, the default
// builder and the ordered guard chain.
type DispatchPolicy struct {
	// Debug logs skip and rejection diagnostics at info level, so they
	// show without NOTIFYD_DEBUG.
	Debug bool `yaml:"debug"`
	// DefaultBuilder is used for pairs with no explicit route. Empty means
	// such pairs are skipped.
	DefaultBuilder string `yaml:"default_builder"`
	// Builders maps "code.channel" to a builder id. An empty id disables the pair.
	Builders map[string]string `yaml:"builders"`
	// Guards lists guard ids in evaluation order.
	Guards []string `yaml:"guards"`
}

type rawDispatchPolicy struct {
	Debug          bool              `yaml:"debug"`
	DefaultBuilder *string           `yaml:"default_builder"`
	Builders       map[string]string `yaml:"builders"`
	Guards         *[]string         `yaml:"guards"`
}

// DefaultDispatchPolicy returns the policy used when no file exists.
func DefaultDispatchPolicy() *DispatchPolicy {
	return &DispatchPolicy{
		DefaultBuilder: notification.BuilderTemplate,
		Builders:       map[string]string{},
		Guards:         slices.Clone(notification.DefaultGuardOrder),
	}
}

// LoadDispatchPolicy reads the policy YAML at filePath. If the file does not
// exist the default policy is returned (not an error). Omitted keys keep
// their defaults; an explicit empty guard list disables all guards.
func LoadDispatchPolicy(filePath string) (*DispatchPolicy, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // path comes from operator config
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultDispatchPolicy(), nil
		}
		return nil, fmt.Errorf("reading dispatch policy %q: %w", filePath, err)
	}
	return ParseDispatchPolicy(data)
}

// ParseDispatchPolicy parses and validates a policy document.
func ParseDispatchPolicy(data []byte) (*DispatchPolicy, error) {
	var raw rawDispatchPolicy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing dispatch policy: %w", err)
	}

	p := DefaultDispatchPolicy()
	p.Debug = raw.Debug
	if raw.DefaultBuilder != nil {
		p.DefaultBuilder = strings.TrimSpace(*raw.DefaultBuilder)
	}
	if raw.Guards != nil {
		p.Guards = *raw.Guards
	}
	for key, id := range raw.Builders {
		code, ch, ok := strings.Cut(key, ".")
		if !ok || code == "" || ch == "" {
			return nil, fmt.Errorf("builder route %q: want \"<code>.<channel>\"", key)
		}
		p.Builders[key] = strings.TrimSpace(id)
	}
	return p, nil
}
