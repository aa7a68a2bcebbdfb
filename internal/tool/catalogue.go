// Package tool implements the Tool Executor and its catalogue (spec.md
// §4.6): argument validation against a declared schema, approval brokering,
// and handler dispatch, returning a typed result the Agent Loop folds back
// into the conversation.
package tool

import (
	"fmt"
	"sort"
	"sync"

	jsonschemav6 "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentkit-run/agentkit/internal/core"
)

type registration struct {
	descriptor core.ToolDescriptor
	handler    core.ToolHandler
	schema     *jsonschemav6.Schema
}

// Catalogue holds every registered tool's descriptor, handler, and
// compiled schema. Grounded on kadirpekel-hector's pkg/tool.Tool naming/
// description/schema shape, collapsed from that package's multi-interface
// hierarchy (CallableTool/StreamingTool/Toolset) to the single synchronous
// ToolHandler contract spec.md §6.4's catalogue needs.
type Catalogue struct {
	mu    sync.RWMutex
	tools map[string]*registration
}

func NewCatalogue() *Catalogue {
	return &Catalogue{tools: make(map[string]*registration)}
}

// Register compiles the descriptor's input schema and adds it to the
// catalogue. Registering a name twice replaces the prior entry.
func (c *Catalogue) Register(descriptor core.ToolDescriptor, handler core.ToolHandler) error {
	compiled, err := compileSchema(descriptor.Name, descriptor.InputSchema)
	if err != nil {
		return fmt.Errorf("registering tool %s: %w", descriptor.Name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[descriptor.Name] = &registration{descriptor: descriptor, handler: handler, schema: compiled}
	return nil
}

func (c *Catalogue) lookup(name string) (*registration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.tools[name]
	return r, ok
}

// Descriptors returns every registered tool's catalogue entry, sorted by
// name, matching the stable ordering an agent card presents to an LLM
// provider across calls.
func (c *Catalogue) Descriptors() []core.ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.ToolDescriptor, 0, len(c.tools))
	for _, r := range c.tools {
		out = append(out, r.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
