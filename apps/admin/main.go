package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/storage/database"
	sqlxrepos "github.com/trezcool/admissions/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf.Database)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Ping(context.Background(), db, conf.Database.ConnectAttempts, conf.Database.ConnectDelay))

	// start CLI
	cli := &commandLine{
		db:         db,
		usrRepo:    sqlxrepos.NewUserRepository(db),
		profileSvc: newProfileService(db),
		bcryptCost: conf.Auth.BcryptCost,
	}
	if err := cli.rootCmd().ExecuteContext(context.Background()); err != nil {
		logger.Printf("\nerror: %s\n", err)
		db.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
