// Package tools holds the side-effect functions the model may request
// mid-generation, keyed by name.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/horus-ai-bot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrToolNotFound is returned by Execute for an unregistered name.
var ErrToolNotFound = errors.New("tool not found")

// ExecMetrics records tool executions. Satisfied by middleware.Metrics.
type ExecMetrics interface {
	RecordToolExecution(tool, status string)
}

// Tool executes one named function. Parameters describes the argument schema
// advertised to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() ParameterSchema
	Execute(ctx context.Context, args map[string]models.Value) (string, error)
}

// ParameterSchema is the JSON-schema-shaped argument declaration providers
// embed in their requests.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Declaration is one tool as advertised to a provider.
type Declaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// Registry maps tool names to executors. Registration happens at startup;
// the last registration for a name wins.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string
	metrics ExecMetrics
	logger  *logrus.Logger
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(metrics ExecMetrics, logger *logrus.Logger) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		metrics: metrics,
		logger:  logger,
	}
}

// Register binds name to tool, replacing any previous binding.
func (r *Registry) Register(name string, tool Tool) {
	r.mu.Lock()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
	r.mu.Unlock()

	r.logger.WithField("tool", name).Info("Tool registered")
}

// Execute runs the named tool. Executor errors propagate unmodified.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]models.Value) (string, error) {
	r.mu.RLock()
	tool, exists := r.tools[name]
	r.mu.RUnlock()

	if !exists {
		r.logger.WithField("tool", name).Error("Tool not found")
		r.recordExecution(name, "not_found")
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	r.logger.WithField("tool", name).Info("Executing tool")

	result, err := tool.Execute(ctx, args)
	if err != nil {
		r.recordExecution(name, "error")
		return "", err
	}

	r.logger.WithField("tool", name).Info("Tool executed successfully")
	r.recordExecution(name, "success")
	return result, nil
}

func (r *Registry) recordExecution(name, status string) {
	if r.metrics != nil {
		r.metrics.RecordToolExecution(name, status)
	}
}

// Declarations lists all registered tools in registration order.
func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decls := make([]Declaration, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		decls = append(decls, Declaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return decls
}
