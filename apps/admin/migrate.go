package main

import (
	"errors"

	"github.com/trezcool/ukaguzi/storage/database"
)

var (
	gooseRunFunc = database.Run // mockable

	errNoDatabase = errors.New("migrations need a database, pending submissions are kept in memory")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	return gooseRunFunc(args[0], cli.db, args[1:]...)
}
