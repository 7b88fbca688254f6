package logintoken

import (
	stderrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/lumichat/rendezvous/domain"
	"github.com/lumichat/rendezvous/errors"
)

// API struct to hold dependencies.
type API struct {
	service *Service
}

// NewAPI initializes the login token API.
func NewAPI(service *Service) *API {
	return &API{service: service}
}

// RegisterRoutes registers the login token routes. The issue endpoint
// expects the authentication middleware in front of it to have resolved the
// caller into the X-User-ID header.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/v1/login/token", a.IssueHandler)
	e.POST("/auth/v1/login", a.RedeemHandler)
}

// IssueHandler mints a login token for the authenticated user. A throttled
// user receives 429.
func (a *API) IssueHandler(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, errors.NewUnknown("no authenticated user"))
	}

	token, err := a.service.Issue(c.Request().Context(), userID)
	if err != nil {
		if errors.StatusOf(err) == http.StatusTooManyRequests {
			return c.JSON(http.StatusTooManyRequests,
				errors.NewSignInError(domain.ReasonRateLimited, "try again later"))
		}
		log.Error().Err(err).Msg("Failed to issue login token")
		return c.JSON(http.StatusInternalServerError, errors.NewUnknown("failed to issue login token"))
	}

	return c.JSON(http.StatusOK, token)
}

// redeemRequest is the body of a redemption call from the new device.
type redeemRequest struct {
	Token string `json:"login_token"`
}

// RedeemHandler consumes a login token and returns the new device identity.
func (a *API) RedeemHandler(c echo.Context) error {
	var req redeemRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, errors.NewUnknown("missing login_token"))
	}

	redemption, err := a.service.Redeem(c.Request().Context(), req.Token)
	if err != nil {
		var serr *errors.SignInError
		if stderrors.As(err, &serr) && serr.Reason == domain.ReasonExpired {
			return c.JSON(http.StatusForbidden, serr)
		}
		log.Error().Err(err).Msg("Failed to redeem login token")
		return c.JSON(http.StatusInternalServerError, errors.NewUnknown("failed to redeem login token"))
	}

	return c.JSON(http.StatusOK, redemption)
}
