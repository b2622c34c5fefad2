// Package registry holds the action handlers and trigger source factories
// known to a running process. The engine resolves handlers through it at
// dispatch time; the scheduler builds trigger sources through it at startup.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/protocol"
)

type Registry struct {
	logger           *slog.Logger
	handlers         map[models.ActionType]protocol.ActionHandler
	triggerFactories map[string]protocol.TriggerSourceFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:           log,
		handlers:         make(map[models.ActionType]protocol.ActionHandler),
		triggerFactories: make(map[string]protocol.TriggerSourceFactory),
	}
}

func (r *Registry) RegisterHandler(actionType models.ActionType, handler protocol.ActionHandler) {
	r.handlers[actionType] = handler
}

// Handler returns the handler registered for an action type. Action types
// without a handler are still dispatchable through the builtin fallbacks, so
// a missing handler is not an error here.
func (r *Registry) Handler(actionType models.ActionType) (protocol.ActionHandler, bool) {
	handler, ok := r.handlers[actionType]

	return handler, ok
}

func (r *Registry) RegisterTriggerSource(factory protocol.TriggerSourceFactory) {
	r.triggerFactories[factory.ID()] = factory
}

func (r *Registry) CreateTriggerSource(sourceID string, config map[string]any) (protocol.TriggerSource, error) {
	factory, ok := r.triggerFactories[sourceID]
	if !ok {
		return nil, fmt.Errorf("trigger source '%s' not registered", sourceID)
	}

	return factory.Create(config, r.logger)
}

// ActionTypes returns the registered action types, sorted for stable API
// listings.
func (r *Registry) ActionTypes() []string {
	types := make([]string, 0, len(r.handlers))
	for actionType := range r.handlers {
		types = append(types, string(actionType))
	}

	sort.Strings(types)

	return types
}

// TriggerSources returns the registered trigger source IDs, sorted.
func (r *Registry) TriggerSources() []string {
	ids := make([]string, 0, len(r.triggerFactories))
	for id := range r.triggerFactories {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// ValidateActionConfig checks an action's configuration against the JSON
// schema its handler publishes, when it publishes one. Action types without
// a registered handler or without a schema pass unchecked, matching the
// permissive dispatch behavior for unknown types.
func (r *Registry) ValidateActionConfig(action *models.WorkflowAction) error {
	if action == nil {
		return nil
	}

	handler, ok := r.handlers[action.Type]
	if !ok {
		return nil
	}

	provider, ok := handler.(protocol.ConfigSchemaProvider)
	if !ok {
		return nil
	}

	schema := provider.ConfigSchema()
	if schema == nil {
		return nil
	}

	config := action.Configuration
	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate action configuration: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("invalid configuration for action type '%s': %s", action.Type, strings.Join(details, "; "))
	}

	return nil
}
