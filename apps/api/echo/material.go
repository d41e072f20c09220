package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core/material"
	"github.com/elimuhq/elimu/core/session"
)

type materialApi struct {
	svc material.Service
}

func registerMaterialAPI(g *echo.Group, authed echo.MiddlewareFunc, svc material.Service) {
	api := materialApi{svc: svc}

	read := requirePermissions(session.PermMaterialsRead)
	write := requirePermissions(session.PermMaterialsWrite)

	g.POST("/uploads", api.requestUpload, authed, write)

	mg := g.Group("/materials", authed)
	mg.POST("", api.create, write)
	mg.GET("", api.query, read)
	mg.DELETE("", api.destroyMultiple, write)
	mg.GET("/:id", api.retrieve, read)
	mg.POST("/:id/download", api.downloadURL, read)
}

// Handlers

func (api *materialApi) requestUpload(ctx echo.Context) error {
	var data material.UploadRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UploadRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ticket, err := api.svc.RequestUpload(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "requesting upload")
	}
	return ctx.JSON(http.StatusCreated, ticket)
}

func (api *materialApi) create(ctx echo.Context) error {
	var data material.NewMaterial
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMaterial")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	m, err := api.svc.Create(ctx.Request().Context(), data, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "creating material")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *materialApi) query(ctx echo.Context) error {
	materials, err := api.svc.Query(ctx.Request().Context(), ctx.QueryParam("intake_group"))
	if err != nil {
		return errors.Wrap(err, "querying materials")
	}
	if materials == nil {
		materials = []material.Material{}
	}
	return ctx.JSON(http.StatusOK, materials)
}

func (api *materialApi) retrieve(ctx echo.Context) error {
	m, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding material")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *materialApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting materials")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// downloadURL is a POST so each signed URL is an explicit, uncacheable grant.
func (api *materialApi) downloadURL(ctx echo.Context) error {
	ticket, err := api.svc.DownloadURL(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "signing download URL")
	}
	return ctx.JSON(http.StatusOK, ticket)
}
