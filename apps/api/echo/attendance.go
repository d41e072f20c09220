package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/attendance"
	"github.com/elimuhq/elimu/core/session"
)

type attendanceApi struct {
	svc attendance.Service
}

func registerAttendanceAPI(g *echo.Group, authed echo.MiddlewareFunc, svc attendance.Service) {
	api := attendanceApi{svc: svc}

	manage := requirePermissions(session.PermAttendanceManage)
	scan := requirePermissions(session.PermAttendanceScan)

	ag := g.Group("/attendance", authed)
	ag.POST("/sessions", api.open, manage)
	ag.GET("/sessions", api.query, manage)
	ag.GET("/sessions/:id", api.retrieve, manage)
	ag.GET("/sessions/:id/qr.png", api.qrCode, manage)
	ag.GET("/sessions/:id/records", api.records, manage)
	ag.DELETE("/sessions", api.close, manage)
	ag.POST("/scan", api.scan, scan)
}

// Handlers

func (api *attendanceApi) open(ctx echo.Context) error {
	var data attendance.OpenSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OpenSession")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	qs, err := api.svc.Open(ctx.Request().Context(), data, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "opening attendance session")
	}
	return ctx.JSON(http.StatusCreated, qs)
}

func (api *attendanceApi) query(ctx echo.Context) error {
	sessions, err := api.svc.Query(ctx.Request().Context(), ctx.QueryParam("campus"))
	if err != nil {
		return errors.Wrap(err, "querying attendance sessions")
	}
	if sessions == nil {
		sessions = []attendance.QRSession{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	qs, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding attendance session")
	}
	return ctx.JSON(http.StatusOK, qs)
}

func (api *attendanceApi) qrCode(ctx echo.Context) error {
	qs, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding attendance session")
	}
	png, err := api.svc.QRCodePNG(qs)
	if err != nil {
		return errors.Wrap(err, "rendering QR code")
	}
	return ctx.Blob(http.StatusOK, "image/png", png)
}

func (api *attendanceApi) records(ctx echo.Context) error {
	records, err := api.svc.Records(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying attendance records")
	}
	if records == nil {
		records = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) close(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Close(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "closing attendance sessions")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attendanceApi) scan(ctx echo.Context) error {
	var data ScanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScanRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	record, err := api.svc.Scan(ctx.Request().Context(), data.Token, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "recording scan")
	}
	return ctx.JSON(http.StatusCreated, record)
}

type ScanRequest struct {
	Token string `json:"token" validate:"required"`
}

func (sr *ScanRequest) Validate() error { return core.Validate.Struct(sr) }
