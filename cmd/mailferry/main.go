package main

import (
	"flag"

	"go.uber.org/zap"

	"github.com/mailferry/mailferry/internal/config"
	"github.com/mailferry/mailferry/internal/export"
	"github.com/mailferry/mailferry/internal/imapx"
	"github.com/mailferry/mailferry/internal/migrate"
	"github.com/mailferry/mailferry/internal/runlog"
)

func main() {
	var (
		credFile = flag.String("credentials", "credentials.yaml", "Credentials file listing the account pairs")
		logDir   = flag.String("log-dir", ".", "Directory for the run log file")
		dryRun   = flag.Bool("dry-run", false, "Report what would be copied without writing anything")
		debug    = flag.Bool("debug", false, "Debug logging")
	)
	flag.Parse()

	zapConfig := zap.NewDevelopmentConfig()
	level := zap.NewAtomicLevel()
	level.SetLevel(zap.InfoLevel)
	if *debug {
		level.SetLevel(zap.DebugLevel)
	}
	zapConfig.Level = level
	logger, _ := zapConfig.Build()
	defer logger.Sync()
	log := logger.Sugar()

	accounts, err := config.Load(*credFile)
	if err != nil {
		log.Fatalf("Bad credentials file: %v", err)
	}

	rec, err := runlog.Create(*logDir)
	if err != nil {
		log.Fatalf("Cannot create run log: %v", err)
	}
	log.Infof("run %s, logging to %s", rec.ID(), rec.Path())

	eng := migrate.NewEngine(log, rec, *dryRun,
		func(s config.Server) (migrate.Source, error) {
			return imapx.Dial(s, log)
		},
		func(a config.Account) (migrate.Target, error) {
			if a.Export != nil {
				return export.NewMaildir(*a.Export, log)
			}
			return imapx.Dial(*a.Dst, log)
		})

	stats := eng.Run(accounts)

	if err := rec.Close(); err != nil {
		log.Fatalf("Writing run log: %v", err)
	}
	log.Infof("done: %d/%d accounts migrated", stats.Accounts-stats.FailedAccounts, stats.Accounts)
}
