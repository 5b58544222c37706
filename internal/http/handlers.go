package http

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codemage/internal/generator"
	"github.com/fyrsmithlabs/codemage/internal/installer"
	"github.com/fyrsmithlabs/codemage/internal/sanitize"
)

const defaultOrigin = "http"

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleStart runs Start synchronously. With auto-approve off it returns as
// soon as the proposal is parked.
func (s *Server) handleStart(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid generation request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Origin == "" {
		req.Origin = defaultOrigin
	}

	res, err := s.gen.Start(c.Request().Context(), req.Description, req.Origin)
	return s.writeResult(c, res, err)
}

func (s *Server) handleConfirm(c echo.Context) error {
	var req ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.gen.Confirm(c.Request().Context(), req.Approved, req.Feedback)
	return s.writeResult(c, res, err)
}

func (s *Server) handleReject(c echo.Context) error {
	res, err := s.gen.Reject(c.Request().Context())
	return s.writeResult(c, res, err)
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.gen.Status())
}

func (s *Server) handlePending(c echo.Context) error {
	return c.JSON(http.StatusOK, s.gen.Pending())
}

// writeResult renders a generation result. Control outcomes are 200; errors
// carry the result body with a status derived from the kind.
func (s *Server) writeResult(c echo.Context, res *generator.Result, err error) error {
	if res == nil {
		res = &generator.Result{Outcome: generator.OutcomeFailed}
	}
	if err == nil {
		return c.JSON(http.StatusOK, res)
	}
	if res.Kind == "" {
		res.Kind = generator.KindOf(err)
		res.Detail = err.Error()
	}
	return c.JSON(statusForKind(res.Kind), res)
}

func statusForKind(kind generator.Kind) int {
	switch kind {
	case generator.KindBusy, generator.KindPendingExists, generator.KindNameCollision:
		return http.StatusConflict
	case generator.KindInvalidDescription, generator.KindDirectoryInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListPlugins(c echo.Context) error {
	root, ok := s.plugins.PluginsRoot()
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "plugin directory not found"})
	}
	list, err := s.plugins.ListLocal()
	if err != nil {
		s.logger.Error(c.Request().Context(), "listing plugins failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, PluginsResponse{Root: root, Plugins: list})
}

// handleInstallPlugin installs a directory under the plugins root. A bare
// plugin name is resolved against the root.
func (s *Server) handleInstallPlugin(c echo.Context) error {
	if s.installer == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: installer.ErrNotConfigured.Error()})
	}

	var req InstallRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Path) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path field is required")
	}

	root, ok := s.plugins.PluginsRoot()
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "plugin directory not found"})
	}
	path := req.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	dir, err := sanitize.ValidatePath(path, root)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	res, err := s.installer.InstallDir(c.Request().Context(), dir)
	if err != nil {
		return c.JSON(installerStatus(err), res)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleUninstallPlugin(c echo.Context) error {
	if s.installer == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: installer.ErrNotConfigured.Error()})
	}

	name := c.Param("name")
	if err := s.installer.Uninstall(c.Request().Context(), name); err != nil {
		return c.JSON(installerStatus(err), ErrorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func installerStatus(err error) int {
	switch {
	case errors.Is(err, installer.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, sanitize.ErrInvalidPluginName):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
