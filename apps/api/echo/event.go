package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core/event"
	"github.com/elimuhq/elimu/core/session"
)

type eventApi struct {
	svc event.Service
}

func registerEventAPI(g *echo.Group, authed echo.MiddlewareFunc, svc event.Service) {
	api := eventApi{svc: svc}

	read := requirePermissions(session.PermEventsRead)
	write := requirePermissions(session.PermEventsWrite)

	eg := g.Group("/events", authed)
	eg.POST("", api.create, write)
	eg.GET("", api.query, read)
	eg.DELETE("", api.destroyMultiple, write)
	eg.GET("/:id", api.retrieve, read)
	eg.PUT("/:id", api.update, write)
}

// Handlers

func (api *eventApi) create(ctx echo.Context) error {
	var data event.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	evt, err := api.svc.Create(ctx.Request().Context(), data, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, evt)
}

func (api *eventApi) query(ctx echo.Context) error {
	filter := new(event.Filter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to Filter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	events, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if events == nil {
		events = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *eventApi) retrieve(ctx echo.Context) error {
	evt, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding event")
	}
	return ctx.JSON(http.StatusOK, evt)
}

func (api *eventApi) update(ctx echo.Context) error {
	var data event.UpdateEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEvent")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	evt, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return ctx.JSON(http.StatusOK, evt)
}

func (api *eventApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting events")
	}
	return ctx.NoContent(http.StatusNoContent)
}
