package platforms

import (
	"sort"

	"github.com/citelens/citelens/internal/config"
)

// Registry is a lookup table of checkers keyed by platform name.
type Registry struct {
	checkers map[string]Checker
}

// NewRegistry builds the registry of all known platforms from configured
// credentials. Platforms without credentials stay registered but disabled, so
// queries targeting them are skipped rather than rejected.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{checkers: make(map[string]Checker)}
	r.register(NewChatGPTChecker(cfg.OpenAIAPIKey))
	r.register(NewClaudeChecker(cfg.AnthropicAPIKey))
	r.register(NewPerplexityChecker(cfg.PerplexityAPIKey))
	r.register(NewGeminiChecker(cfg.GeminiAPIKey))
	return r
}

// NewRegistryWith builds a registry from explicit checkers, for embedders and
// tests that bring their own platform implementations.
func NewRegistryWith(checkers ...Checker) *Registry {
	r := &Registry{checkers: make(map[string]Checker)}
	for _, c := range checkers {
		r.register(c)
	}
	return r
}

func (r *Registry) register(c Checker) {
	r.checkers[c.Name()] = c
}

// Get returns the checker for a platform name.
func (r *Registry) Get(name string) (Checker, bool) {
	c, ok := r.checkers[name]
	return c, ok
}

// Names returns all registered platform names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
