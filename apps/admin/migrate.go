package main

import (
	"io/fs"

	"github.com/jmoiron/sqlx"
	"github.com/trezcool/goose"

	appfs "github.com/elimuhq/elimu/fs"
)

// mockable
var gooseRunFunc = func(command string, db *sqlx.DB, fsys fs.FS, dir string, args ...string) error {
	return goose.RunFS(command, db.DB, fsys, dir, args...)
}

func (cli *commandLine) migrate(args []string) error {
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], cli.db, appfs.FS, "migrations", arguments...)
}
