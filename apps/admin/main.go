package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/esmeraldinha/backend/core"
	"github.com/esmeraldinha/backend/core/calendar"
	appfs "github.com/esmeraldinha/backend/fs"
	artifactsvc "github.com/esmeraldinha/backend/services/artifact"
	emailsvc "github.com/esmeraldinha/backend/services/email"
	logsvc "github.com/esmeraldinha/backend/services/logger"
	"github.com/esmeraldinha/backend/services/pdfdoc"
	"github.com/esmeraldinha/backend/storage/database"
	sqlxrepos "github.com/esmeraldinha/backend/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf.AppName+" ADMIN"), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.Debug, logger)

	processor := calendar.NewProcessor(
		pdfdoc.Open,
		artifactsvc.NewFileStore(conf.Calendar.ArtifactDir, logger),
		conf.Calendar.MaxPages,
		logger,
	)
	calSvc := calendar.NewService(
		sqlxrepos.NewCalendarRepository(db),
		processor,
		calendar.NewJSONFixtureSource(appfs.FS, appfs.LegendFixtures, appfs.DayFixtures),
		mailSvc,
		logger,
		conf,
	)

	// start CLI
	cli := commandLine{
		db:     db,
		calSvc: calSvc,
		open:   pdfdoc.Open,
		in:     os.Stdin,
		out:    os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintln(os.Stderr, color.RedString("\nerror: %s", err))
		}
		os.Exit(1)
	}
}
