package api

import (
	"github.com/starford/shiba/internal/history"
)

// SurfaceListResponse lists the open surfaces.
type SurfaceListResponse struct {
	Surfaces []string `json:"surfaces" validate:"required"`
	Total    int      `json:"total" example:"2" validate:"required"`
}

// HistoryResponse wraps journal entries, newest first.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries" validate:"required"`
}

// RequestAccepted acknowledges a posted surface request.
type RequestAccepted struct {
	Surface string `json:"surface" validate:"required"`
	Type    string `json:"type" example:"request-config" validate:"required"`
}
