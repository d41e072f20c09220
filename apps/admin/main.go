package main

import (
	"log"
	"os"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/session"
	"github.com/elimuhq/elimu/storage/database"
	"github.com/elimuhq/elimu/storage/database/sqlxrepos"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	// start CLI
	usrRepo := sqlxrepos.NewUserRepository(db)
	cli := commandLine{
		db:      db,
		usrRepo: usrRepo,
		sessSvc: session.NewService(sqlxrepos.NewSessionRepository(db), usrRepo),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
