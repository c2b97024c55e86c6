package api

import (
	"errors"
	"net/http"

	"github.com/signalsfoundry/fleet-orchestrator/core"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
)

// errorBody is the JSON error envelope every failing endpoint returns.
// Kind is a stable, machine-readable discriminator.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// toHTTPError maps domain errors onto HTTP status codes and error kinds.
func toHTTPError(err error) (int, errorBody) {
	switch {
	case errors.Is(err, registry.ErrPoolNotFound),
		errors.Is(err, registry.ErrInstanceNotFound):
		return http.StatusNotFound, errorBody{Kind: "not_found", Message: err.Error()}

	case errors.Is(err, core.ErrInsufficientCapacity):
		return http.StatusConflict, errorBody{Kind: "insufficient_capacity", Message: err.Error()}

	case errors.Is(err, registry.ErrPoolExists),
		errors.Is(err, registry.ErrInstanceExists):
		return http.StatusConflict, errorBody{Kind: "already_exists", Message: err.Error()}

	case errors.Is(err, registry.ErrPoolBadInput),
		errors.Is(err, registry.ErrBadStatus),
		errors.Is(err, registry.ErrBadTransition):
		return http.StatusBadRequest, errorBody{Kind: "invalid_argument", Message: err.Error()}

	case errors.Is(err, registry.ErrOutOfRange):
		return http.StatusBadRequest, errorBody{Kind: "out_of_range", Message: err.Error()}

	default:
		return http.StatusInternalServerError, errorBody{Kind: "internal", Message: err.Error()}
	}
}
