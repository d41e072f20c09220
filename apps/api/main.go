package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	echoapi "github.com/elimuhq/elimu/apps/api/echo"
	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/assessment"
	"github.com/elimuhq/elimu/core/attendance"
	"github.com/elimuhq/elimu/core/event"
	"github.com/elimuhq/elimu/core/finance"
	"github.com/elimuhq/elimu/core/material"
	"github.com/elimuhq/elimu/core/session"
	"github.com/elimuhq/elimu/core/user"
	emailsvc "github.com/elimuhq/elimu/services/email"
	logsvc "github.com/elimuhq/elimu/services/logger"
	objstore "github.com/elimuhq/elimu/services/storage"
	"github.com/elimuhq/elimu/storage/database"
	"github.com/elimuhq/elimu/storage/database/sqlxrepos"
)

const shutdownTimeout = 10 * time.Second

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, core.Conf)
	logger.Enable(!(core.Conf.Debug || core.Conf.TestMode))

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	store := objstore.NewStore()

	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, mailSvc, logger)
	groupSvc := user.NewGroupService(sqlxrepos.NewGroupRepository(db))
	sessSvc := session.NewService(sqlxrepos.NewSessionRepository(db), usrRepo)
	assessSvc := assessment.NewService(sqlxrepos.NewAssessmentRepository(db))
	attendSvc := attendance.NewService(sqlxrepos.NewAttendanceRepository(db))
	eventSvc := event.NewService(sqlxrepos.NewEventRepository(db))
	financeSvc := finance.NewService(sqlxrepos.NewFinanceRepository(db))
	materialSvc := material.NewService(sqlxrepos.NewMaterialRepository(db), store)

	// start API server
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	app := echoapi.NewServer(
		&echoapi.Options{
			Address:       core.Conf.Server.Address(),
			Logger:        logger,
			UserSvc:       usrSvc,
			GroupSvc:      groupSvc,
			SessionSvc:    sessSvc,
			AssessmentSvc: assessSvc,
			AttendanceSvc: attendSvc,
			EventSvc:      eventSvc,
			FinanceSvc:    financeSvc,
			MaterialSvc:   materialSvc,
			ObjectStore:   store,
		},
		func() { shutdown <- syscall.SIGTERM },
	)
	go app.Start()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		std.Printf("graceful shutdown failed: %v", err)
	}
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
