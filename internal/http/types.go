package http

import "github.com/fyrsmithlabs/codemage/internal/hostdir"

// StartRequest is the request body for POST /api/v1/generations.
type StartRequest struct {
	Description string `json:"description"`
	Origin      string `json:"origin"`
}

// ConfirmRequest is the request body for POST /api/v1/generations/confirm.
type ConfirmRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

// InstallRequest is the request body for POST /api/v1/plugins/install.
type InstallRequest struct {
	Path string `json:"path"`
}

// PluginsResponse is the response body for GET /api/v1/plugins.
type PluginsResponse struct {
	Root    string                `json:"root"`
	Plugins []hostdir.LocalPlugin `json:"plugins"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of non-generation errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
