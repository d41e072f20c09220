package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/assessment"
	"github.com/elimuhq/elimu/core/attendance"
	"github.com/elimuhq/elimu/core/event"
	"github.com/elimuhq/elimu/core/finance"
	"github.com/elimuhq/elimu/core/material"
	"github.com/elimuhq/elimu/core/session"
	"github.com/elimuhq/elimu/core/user"
	objstore "github.com/elimuhq/elimu/services/storage"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Logger         core.Logger

		UserSvc       user.Service
		GroupSvc      user.GroupService
		SessionSvc    session.Service
		AssessmentSvc assessment.Service
		AttendanceSvc attendance.Service
		EventSvc      event.Service
		FinanceSvc    finance.Service
		MaterialSvc   material.Service
		ObjectStore   *objstore.Store
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options, signalShutdown func()) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup(signalShutdown)
	return s
}

func (s *server) setup(signalShutdown func()) {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, signalShutdown)
	s.app.Debug = core.Conf.Debug

	s.app.GET("/", home)

	// pre-signed object store surface; auth is the signature itself
	registerObjectsAPI(s.app, s.opts.ObjectStore)

	v1 := s.app.Group("/v1")
	authed := sessionMiddleware(s.opts.SessionSvc)

	registerAuthAPI(v1, authed, s.opts.UserSvc, s.opts.SessionSvc)
	registerUserAPI(v1, authed, s.opts.UserSvc)
	registerGroupAPI(v1, authed, s.opts.GroupSvc)
	registerAssignmentAPI(v1, authed, s.opts.AssessmentSvc)
	registerAttendanceAPI(v1, authed, s.opts.AttendanceSvc)
	registerEventAPI(v1, authed, s.opts.EventSvc)
	registerFinanceAPI(v1, authed, s.opts.FinanceSvc)
	registerMaterialAPI(v1, authed, s.opts.MaterialSvc)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Address))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Elimu API!")
}
