package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/stacksats/dca/common"
	"github.com/stacksats/dca/internal/types"
	"github.com/stacksats/dca/service"
	"github.com/stacksats/dca/storage"
)

type ErrorResponse struct {
	Message string `json:"message"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Message: message}
}

type createDCARequest struct {
	UserAddress string `json:"user_address" validate:"required"`
	service.CreateConfigParams
}

// CreateDCAConfig creates a new recurring purchase config for the user.
func (s *Server) CreateDCAConfig(c echo.Context) error {
	var req createDCARequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("fail to parse request"))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	}
	if !common.ValidAddress(req.UserAddress) {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid user address"))
	}

	config, err := s.configs.Create(c.Request().Context(), common.NormalizeAddress(req.UserAddress), req.CreateConfigParams)
	if err != nil {
		s.logger.WithError(err).Error("failed to create DCA config")
		return c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	}

	return c.JSON(http.StatusCreated, config)
}

// ListDCAConfigs returns all configs owned by the given user.
func (s *Server) ListDCAConfigs(c echo.Context) error {
	userAddress := c.QueryParam("userAddress")
	if !common.ValidAddress(userAddress) {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid user address"))
	}

	configs, err := s.configs.List(c.Request().Context(), common.NormalizeAddress(userAddress), c.QueryParam("sort"))
	if err != nil {
		s.logger.WithError(err).Error("failed to list DCA configs")
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("failed to list configs"))
	}

	return c.JSON(http.StatusOK, configs)
}

// GetDCAConfig returns a single config, enforcing ownership.
func (s *Server) GetDCAConfig(c echo.Context) error {
	configID, userAddress, ok, err := s.configRequest(c)
	if !ok {
		return err
	}

	config, err := s.configs.Get(c.Request().Context(), userAddress, configID)
	if err != nil {
		return s.configError(c, err, "failed to get config")
	}

	return c.JSON(http.StatusOK, config)
}

// UpdateDCAConfig applies a partial update to an owned config.
func (s *Server) UpdateDCAConfig(c echo.Context) error {
	configID, userAddress, ok, err := s.configRequest(c)
	if !ok {
		return err
	}

	var patch types.DCAConfigPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("fail to parse request"))
	}

	config, err := s.configs.Update(c.Request().Context(), userAddress, configID, patch)
	if err != nil {
		return s.configError(c, err, "failed to update config")
	}

	return c.JSON(http.StatusOK, config)
}

// DeleteDCAConfig removes an owned config.
func (s *Server) DeleteDCAConfig(c echo.Context) error {
	configID, userAddress, ok, err := s.configRequest(c)
	if !ok {
		return err
	}

	if err := s.configs.Delete(c.Request().Context(), userAddress, configID); err != nil {
		return s.configError(c, err, "failed to delete config")
	}

	return c.NoContent(http.StatusNoContent)
}

// configRequest validates the :id path param and userAddress query param
// shared by the per-config routes. When ok is false the 400 response has
// already been written.
func (s *Server) configRequest(c echo.Context) (configID, userAddress string, ok bool, err error) {
	configID = c.Param("id")
	if _, perr := uuid.Parse(configID); perr != nil {
		return "", "", false, c.JSON(http.StatusBadRequest, NewErrorResponse("invalid config ID"))
	}
	userAddress = c.QueryParam("userAddress")
	if !common.ValidAddress(userAddress) {
		return "", "", false, c.JSON(http.StatusBadRequest, NewErrorResponse("invalid user address"))
	}
	return configID, common.NormalizeAddress(userAddress), true, nil
}

func (s *Server) configError(c echo.Context, err error, msg string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.JSON(http.StatusNotFound, NewErrorResponse("config not found"))
	case errors.Is(err, service.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, NewErrorResponse("config does not belong to user"))
	default:
		s.logger.WithError(err).Error(msg)
		return c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	}
}
