package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/session"
	"github.com/elimuhq/elimu/core/user"
)

type authApi struct {
	usrSvc  user.Service
	sessSvc session.Service
}

func registerAuthAPI(g *echo.Group, authed echo.MiddlewareFunc, usrSvc user.Service, sessSvc session.Service) {
	api := authApi{
		usrSvc:  usrSvc,
		sessSvc: sessSvc,
	}

	// un-authed endpoints
	// TODO: rate limit `/login`, `/password-reset` & `/password-reset-confirm`
	g.POST("/login", api.login)
	g.POST("/password-reset", api.resetPassword)
	g.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	g.GET("/session", api.currentSession, authed)
	g.POST("/logout", api.logout, authed)
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr, err := api.usrSvc.GetByUsernameOrEmail(ctx.Request().Context(), data.Username)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(errors.New("invalid credentials"))
		}
		return errors.Wrap(err, "finding user")
	}
	if err := usr.CheckPassword(data.Password); err != nil {
		return core.NewValidationError(errors.New("invalid credentials"))
	}
	if !usr.Active() {
		return errAccountDeactivated
	}

	pair, sess, err := api.sessSvc.Login(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "opening session")
	}
	if usr, err = api.usrSvc.SetLastLogin(ctx.Request().Context(), usr); err != nil {
		return errors.Wrap(err, "setting last login")
	}

	setAuthCookies(ctx, pair, sess, usr)
	return ctx.JSON(http.StatusOK, LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         usr,
	})
}

func (api *authApi) logout(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	if err := api.sessSvc.Logout(ctx.Request().Context(), sess.ID); err != nil {
		if errors.Cause(err) != session.ErrSessionNotFound {
			return errors.Wrap(err, "closing session")
		}
	}
	clearAuthCookies(ctx)
	return ctx.NoContent(http.StatusNoContent)
}

// currentSession lets a client check its standing without side effects; the
// middleware has already validated (or refreshed) the access token by the
// time we get here.
func (api *authApi) currentSession(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.usrSvc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.usrSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		AccessToken  string    `json:"access_token"`
		RefreshToken string    `json:"refresh_token"`
		User         user.User `json:"user"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate() error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return core.Validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate() error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return core.Validate.Struct(pr)
}
