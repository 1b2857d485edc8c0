// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/lib/pq"

	"github.com/ichnaea-go/locationd/internal/config"
	"github.com/ichnaea-go/locationd/internal/objectstore"
	"github.com/ichnaea-go/locationd/internal/repository"
	"github.com/ichnaea-go/locationd/internal/runtimeEnv"
	"github.com/ichnaea-go/locationd/internal/scheduler"
	"github.com/ichnaea-go/locationd/pkg/log"
)

func main() {
	var flagConfigFile string
	var flagMigrateDB, flagStopImmediately bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default config options by those specified in `config.json`")
	flag.BoolVar(&flagMigrateDB, "migrate-db", false, "Apply all pending schema migrations and exit")
	flag.BoolVar(&flagStopImmediately, "no-server", false, "Do not start the scheduler, stop right after initialization and argument handling")
	flag.Parse()

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	config.Init(flagConfigFile)
	log.SetLogLevel(config.Keys.LogLevel)

	if flagMigrateDB {
		repository.MigrateDB(config.Keys.DBDriver, config.Keys.DB)
		return
	}

	repository.Connect(config.Keys.DBDriver, config.Keys.DB)
	repo := repository.GetRepository()

	store, err := objectstore.New(config.Keys.ObjectStore)
	if err != nil {
		log.Fatal(err)
	}

	if flagStopImmediately {
		return
	}

	metricsServer := &http.Server{
		Addr:    config.Keys.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		log.Printf("metrics server listening at %s...", config.Keys.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	scheduler.Start(config.Keys, repo, store)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	runtimeEnv.SystemdNotify(true, "running")

	<-sigs
	runtimeEnv.SystemdNotify(false, "shutting down")

	scheduler.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("error while shutting down metrics server: %s", err.Error())
	}

	log.Print("Graceful shutdown completed!")
}
