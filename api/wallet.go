package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stacksats/dca/common"
	"github.com/stacksats/dca/internal/types"
	"github.com/stacksats/dca/storage"
)

type ensureWalletRequest struct {
	UserAddress string `json:"user_address" validate:"required"`
}

// EnsureWallet returns the user's server wallet, provisioning one on first
// call.
func (s *Server) EnsureWallet(c echo.Context) error {
	var req ensureWalletRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("fail to parse request"))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	}
	if !common.ValidAddress(req.UserAddress) {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid user address"))
	}

	user, err := s.wallets.Ensure(c.Request().Context(), common.NormalizeAddress(req.UserAddress))
	if err != nil {
		s.logger.WithError(err).Error("failed to ensure server wallet")
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("failed to provision wallet"))
	}

	return c.JSON(http.StatusOK, user)
}

// GetWallet returns the stored user record without provisioning.
func (s *Server) GetWallet(c echo.Context) error {
	userAddress := c.QueryParam("userAddress")
	if !common.ValidAddress(userAddress) {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid user address"))
	}

	user, err := s.wallets.Lookup(c.Request().Context(), common.NormalizeAddress(userAddress))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.JSON(http.StatusNotFound, NewErrorResponse("user not found"))
		}
		s.logger.WithError(err).Error("failed to get user")
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("failed to get user"))
	}

	return c.JSON(http.StatusOK, user)
}

type grantSpendPermissionRequest struct {
	UserAddress  string `json:"user_address" validate:"required"`
	Token        string `json:"token" validate:"required"`
	Allowance    string `json:"allowance" validate:"required"`
	PeriodInDays int    `json:"period_in_days" validate:"required"`
}

// GrantSpendPermission stores the allowance the user delegated to the
// server wallet.
func (s *Server) GrantSpendPermission(c echo.Context) error {
	var req grantSpendPermissionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("fail to parse request"))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	}
	if !common.ValidAddress(req.UserAddress) {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid user address"))
	}

	user, err := s.wallets.GrantSpendPermission(c.Request().Context(), common.NormalizeAddress(req.UserAddress), types.SpendPermission{
		Token:        req.Token,
		Allowance:    req.Allowance,
		PeriodInDays: req.PeriodInDays,
	})
	if err != nil {
		s.logger.WithError(err).Error("failed to store spend permission")
		return c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	}

	return c.JSON(http.StatusOK, user)
}

// GetSpendPermission returns the user's stored grant, null when the user
// never granted one.
func (s *Server) GetSpendPermission(c echo.Context) error {
	userAddress := c.QueryParam("userAddress")
	if !common.ValidAddress(userAddress) {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid user address"))
	}

	grant, err := s.wallets.SpendPermission(c.Request().Context(), common.NormalizeAddress(userAddress))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.JSON(http.StatusNotFound, NewErrorResponse("user not found"))
		}
		s.logger.WithError(err).Error("failed to get spend permission")
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("failed to get spend permission"))
	}

	return c.JSON(http.StatusOK, grant)
}
