// Package provider implements the LLM Provider contract (spec.md §6.1): a
// consumed external collaborator the Agent Loop drives through
// core.LLMProvider. It ships a deterministic Mock provider for tests and a
// minimal OpenAI-compatible streaming HTTP provider for real use, both
// translating into the core package's text-delta/tool-call/usage/done event
// vocabulary.
package provider

import (
	"time"

	"github.com/agentkit-run/agentkit/internal/core"
)

// Config selects and configures one provider at startup, loaded as part of
// internal/config's workspace settings.
type Config struct {
	Type    string // "openai", "mock"
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// New builds the provider named by cfg.Type. Grounded on
// kadirpekel-hector/pkg/llms.LLMRegistry.CreateLLMFromConfig's type-switch
// shape, collapsed to the two concrete providers this repository ships.
func New(cfg Config) (core.LLMProvider, error) {
	switch cfg.Type {
	case "", "mock":
		return NewMock(), nil
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, core.ErrValidation(core.CodeModelNotFound, "unknown llm provider type: "+cfg.Type)
	}
}
