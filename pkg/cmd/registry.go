// Package cmd provides common initialization functions for the flowkit
// binaries.
package cmd

import (
	"log/slog"

	"github.com/tavolohq/flowkit/pkg/actions/logmessage"
	"github.com/tavolohq/flowkit/pkg/actions/setvariable"
	"github.com/tavolohq/flowkit/pkg/actions/webhookcall"
	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/registry"
	"github.com/tavolohq/flowkit/pkg/triggers/queue"
	"github.com/tavolohq/flowkit/pkg/triggers/schedule"
)

func registerNativeHandlers(reg *registry.Registry, logger *slog.Logger) {
	reg.RegisterHandler(models.ActionTypeLogMessage, logmessage.NewHandler(logger))
	reg.RegisterHandler(models.ActionTypeSetVariable, setvariable.NewHandler())
	reg.RegisterHandler(models.ActionTypeWebhookCall, webhookcall.NewHandler(logger))
}

func registerNativeTriggerSources(reg *registry.Registry) {
	reg.RegisterTriggerSource(schedule.NewFactory())
	reg.RegisterTriggerSource(queue.NewFactory())
}

// NewRegistry builds a registry with every native action handler and trigger
// source registered. Action types without a native handler dispatch through
// the builtin fallbacks.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	registerNativeHandlers(reg, logger)
	registerNativeTriggerSources(reg)

	return reg
}
