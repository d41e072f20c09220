package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core/session"
	"github.com/elimuhq/elimu/core/user"
)

type groupApi struct {
	svc user.GroupService
}

func registerGroupAPI(g *echo.Group, authed echo.MiddlewareFunc, svc user.GroupService) {
	api := groupApi{svc: svc}

	manage := requirePermissions(session.PermUsersManage)

	ig := g.Group("/intake-groups", authed)
	ig.GET("", api.queryIntakeGroups)
	ig.GET("/:id", api.retrieveIntakeGroup)
	ig.PUT("/:id", api.saveIntakeGroup, manage)

	ag := g.Group("/accommodations", authed)
	ag.GET("", api.queryAccommodations)
	ag.GET("/:id", api.retrieveAccommodation)
	ag.PUT("/:id", api.saveAccommodation, manage)
	ag.DELETE("", api.destroyAccommodations, manage)
}

// Handlers

func (api *groupApi) queryIntakeGroups(ctx echo.Context) error {
	groups, err := api.svc.IntakeGroups(ctx.Request().Context(), ctx.QueryParam("campus"))
	if err != nil {
		return errors.Wrap(err, "querying intake groups")
	}
	if groups == nil {
		groups = []user.IntakeGroup{}
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *groupApi) retrieveIntakeGroup(ctx echo.Context) error {
	group, err := api.svc.GetIntakeGroup(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding intake group")
	}
	return ctx.JSON(http.StatusOK, group)
}

// saveIntakeGroup upserts under the caller-supplied ID; PUT is create and
// update in one.
func (api *groupApi) saveIntakeGroup(ctx echo.Context) error {
	var data user.UpsertIntakeGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpsertIntakeGroup")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	group, err := api.svc.SaveIntakeGroup(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "saving intake group")
	}
	return ctx.JSON(http.StatusOK, group)
}

func (api *groupApi) queryAccommodations(ctx echo.Context) error {
	accs, err := api.svc.Accommodations(ctx.Request().Context(), ctx.QueryParam("campus"))
	if err != nil {
		return errors.Wrap(err, "querying accommodations")
	}
	if accs == nil {
		accs = []user.Accommodation{}
	}
	return ctx.JSON(http.StatusOK, accs)
}

func (api *groupApi) retrieveAccommodation(ctx echo.Context) error {
	acc, err := api.svc.GetAccommodation(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding accommodation")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *groupApi) saveAccommodation(ctx echo.Context) error {
	var data user.UpsertAccommodation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpsertAccommodation")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	acc, err := api.svc.SaveAccommodation(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "saving accommodation")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *groupApi) destroyAccommodations(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.DeleteAccommodations(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting accommodations")
	}
	return ctx.NoContent(http.StatusNoContent)
}
