package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/httpsrv/go-httpsrv/config"
	"github.com/httpsrv/go-httpsrv/httpsrv"
	"github.com/httpsrv/go-httpsrv/spec"
)

func main() {
	cfg := config.New()

	logger := logrus.StandardLogger()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	server := httpsrv.New(
		httpsrv.WithHost(cfg.Host),
		httpsrv.WithPort(cfg.Port),
		httpsrv.WithConfigBasePath(cfg.ConfigBasePath),
		httpsrv.WithLogger(logger),
	)

	// Try to load a default rule set
	{
		rulesFile, err := os.OpenFile(cfg.RulesFilePath, os.O_RDONLY, 0644)

		// No rules file...no problem
		if err == nil {
			set, err := spec.Load(rulesFile)
			rulesFile.Close()

			if err != nil {
				logger.WithError(err).Fatal("failed to load rule set")
			}

			server.AddRules(set)
		}
	}

	if err := server.Start(); err != nil {
		logger.WithError(err).Fatal("failed to start")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := server.Stop(); err != nil {
		logger.WithError(err).Error("failed to stop")
	}
}
