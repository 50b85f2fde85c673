package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbolis/intake-survey/app"
	"github.com/mbolis/intake-survey/config"
	"github.com/mbolis/intake-survey/database"
	"github.com/mbolis/intake-survey/log"
	"github.com/mbolis/intake-survey/routes"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	app := app.New(db, cfg)
	handler := routes.Wire(app)

	err = runServer(cfg, handler, func(ctx context.Context) {
		err := app.Traversals.Close(ctx)
		if err != nil {
			log.Error("main.traversals.close:", err)
		}
	})
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler, onShutdown func(ctx context.Context)) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), cfg.SaveTimeout)
		defer cancel()

		log.Info("Shutting down")
		err := srv.Shutdown(ctx)
		if err != nil {
			log.Error("main.server.shutdown:", err)
		}
		onShutdown(ctx)
	}()

	log.Info("Listening on " + cfg.Url())
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		// pending saves are drained before the database is closed
		<-drained
	}
	return err
}
