package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/assessment"
	"github.com/elimuhq/elimu/core/session"
)

type assignmentApi struct {
	svc assessment.Service
}

func registerAssignmentAPI(g *echo.Group, authed echo.MiddlewareFunc, svc assessment.Service) {
	api := assignmentApi{svc: svc}

	read := requirePermissions(session.PermAssignmentsRead)
	write := requirePermissions(session.PermAssignmentsWrite)
	mark := requirePermissions(session.PermAssignmentsMark)
	attempt := requirePermissions(session.PermAssignmentsAttempt)

	ag := g.Group("/assignments", authed)
	ag.POST("", api.create, write)
	ag.GET("", api.query, read)
	ag.DELETE("", api.destroyMultiple, write)
	ag.GET("/:id", api.retrieve, read)
	ag.PUT("/:id", api.update, write)

	ag.POST("/:id/generate-password", api.generatePassword, write)
	ag.POST("/:id/validate-password", api.validatePassword, attempt)
	ag.GET("/:id/verify-status", api.verifyStatus, attempt)
	ag.POST("/:id/start", api.startAttempt, attempt)
	ag.GET("/:id/results", api.results, mark)

	rg := g.Group("/results", authed)
	rg.POST("/:id/submit", api.submitAttempt, attempt)
	rg.POST("/:id/score", api.submitScore, mark)
}

// Handlers

func (api *assignmentApi) create(ctx echo.Context) error {
	var data assessment.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.Create(ctx.Request().Context(), data, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *assignmentApi) query(ctx echo.Context) error {
	filter := new(assessment.AssignmentFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to AssignmentFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	assignments, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if assignments == nil {
		assignments = []assessment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *assignmentApi) retrieve(ctx echo.Context) error {
	a, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) update(ctx echo.Context) error {
	var data assessment.UpdateAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssignment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	a, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting assignments")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// generatePassword mints a fresh access password. The password is excluded
// from the Assignment JSON so this response is the only place it surfaces.
func (api *assignmentApi) generatePassword(ctx echo.Context) error {
	a, err := api.svc.GeneratePassword(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "generating assignment password")
	}
	return ctx.JSON(http.StatusOK, GeneratedPasswordResponse{
		Password:    a.Password,
		GeneratedAt: a.PasswordGeneratedAt,
		ValidUntil:  a.PasswordGeneratedAt.Add(core.Conf.AssessmentPasswordTimeout),
	})
}

func (api *assignmentApi) validatePassword(ctx echo.Context) error {
	var data ValidatePasswordRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ValidatePasswordRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	check, err := api.svc.ValidatePassword(ctx.Request().Context(), ctx.Param("id"), data.Password)
	if err != nil {
		return errors.Wrap(err, "validating assignment password")
	}
	return ctx.JSON(http.StatusOK, check)
}

func (api *assignmentApi) verifyStatus(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	status, err := api.svc.VerifyStatus(ctx.Request().Context(), ctx.Param("id"), sess.UserID)
	if err != nil {
		return errors.Wrap(err, "verifying attempt status")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *assignmentApi) startAttempt(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.StartAttempt(ctx.Request().Context(), ctx.Param("id"), sess.UserID)
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *assignmentApi) submitAttempt(ctx echo.Context) error {
	var data SubmitAttemptRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitAttemptRequest")
	}

	res, err := api.svc.SubmitAttempt(ctx.Request().Context(), ctx.Param("id"), data.Answers)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *assignmentApi) submitScore(ctx echo.Context) error {
	var data SubmitScoreRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitScoreRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	// the assignment type decides which score column the total lands in
	a, err := api.svc.GetByID(ctx.Request().Context(), data.AssignmentID)
	if err != nil {
		return errors.Wrap(err, "finding assignment")
	}

	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.SubmitScore(ctx.Request().Context(), ctx.Param("id"), data.Scores, sess.UserID, a.Type)
	if err != nil {
		return errors.Wrap(err, "submitting score")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *assignmentApi) results(ctx echo.Context) error {
	results, err := api.svc.Results(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	if results == nil {
		results = []assessment.Result{}
	}
	return ctx.JSON(http.StatusOK, results)
}

type (
	GeneratedPasswordResponse struct {
		Password    string    `json:"password"`
		GeneratedAt time.Time `json:"generated_at"`
		ValidUntil  time.Time `json:"valid_until"`
	}

	ValidatePasswordRequest struct {
		Password string `json:"password" validate:"required"`
	}

	SubmitAttemptRequest struct {
		Answers map[string]string `json:"answers"`
	}

	SubmitScoreRequest struct {
		AssignmentID string              `json:"assignment_id" validate:"required"`
		Scores       assessment.ScoreMap `json:"scores" validate:"required"`
	}
)

func (vr *ValidatePasswordRequest) Validate() error { return core.Validate.Struct(vr) }

func (sr *SubmitScoreRequest) Validate() error { return core.Validate.Struct(sr) }
