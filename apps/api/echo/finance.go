package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core/finance"
	"github.com/elimuhq/elimu/core/session"
)

type financeApi struct {
	svc finance.Service
}

func registerFinanceAPI(g *echo.Group, authed echo.MiddlewareFunc, svc finance.Service) {
	api := financeApi{svc: svc}

	read := requirePermissions(session.PermFinanceRead)
	write := requirePermissions(session.PermFinanceWrite)

	pg := g.Group("/payables", authed)
	pg.POST("", api.create, write)
	pg.GET("", api.query, read)
	pg.DELETE("", api.destroyMultiple, write)
	pg.GET("/balance", api.balance, read)
	pg.GET("/:id", api.retrieve, read)
	pg.POST("/:id/payments", api.recordPayment, write)
	pg.GET("/:id/payments", api.payments, read)
}

// Handlers

func (api *financeApi) create(ctx echo.Context) error {
	var data finance.NewPayable
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayable")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	p, err := api.svc.CreatePayable(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating payable")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *financeApi) query(ctx echo.Context) error {
	payables, err := api.svc.Payables(ctx.Request().Context(), ctx.QueryParam("student"))
	if err != nil {
		return errors.Wrap(err, "querying payables")
	}
	if payables == nil {
		payables = []finance.Payable{}
	}
	return ctx.JSON(http.StatusOK, payables)
}

func (api *financeApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.GetPayable(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding payable")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *financeApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.DeletePayables(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting payables")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *financeApi) recordPayment(ctx echo.Context) error {
	var data finance.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.RecordPayment(ctx.Request().Context(), ctx.Param("id"), data, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *financeApi) payments(ctx echo.Context) error {
	payments, err := api.svc.Payments(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []finance.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *financeApi) balance(ctx echo.Context) error {
	total, err := api.svc.Balance(ctx.Request().Context(), ctx.QueryParam("student"))
	if err != nil {
		return errors.Wrap(err, "computing balance")
	}
	return ctx.JSON(http.StatusOK, BalanceResponse{StudentID: ctx.QueryParam("student"), Outstanding: total})
}

type BalanceResponse struct {
	StudentID   string `json:"student_id"`
	Outstanding int64  `json:"outstanding"` // cents
}
