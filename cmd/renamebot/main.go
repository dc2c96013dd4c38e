package main

import (
	"context"
	"net"
	"net/http"

	"github.com/autorenamer/autorenamer/pkg/bot"
	"github.com/autorenamer/autorenamer/pkg/config"
	"github.com/autorenamer/autorenamer/pkg/database"
	"github.com/autorenamer/autorenamer/pkg/migrations"
	"github.com/autorenamer/autorenamer/pkg/models"
	"github.com/autorenamer/autorenamer/pkg/queue"
	"github.com/autorenamer/autorenamer/pkg/scratch"
	"github.com/autorenamer/autorenamer/pkg/server"
	"github.com/autorenamer/autorenamer/pkg/transport"
	"github.com/autorenamer/autorenamer/pkg/version"
	"github.com/autorenamer/autorenamer/pkg/worker"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting renamebot", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	scratchManager, err := scratch.New(cfg.ScratchDir)
	if err != nil {
		log.Err(err).Fatal("scratch directory error")
	}
	if err := scratchManager.Lock(); err != nil {
		log.Err(err).Fatal("scratch directory lock error")
	}
	// Anything left in scratch belongs to a previous run that died mid-job.
	removed, err := scratchManager.Sweep(0)
	if err != nil {
		log.Err(err).Error("startup scratch sweep error")
	}
	log.Info("scratch directory initialized", logger.Data{"path": scratchManager.Root(), "removed": removed})

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	client, err := transport.NewTelegram(cfg)
	if err != nil {
		log.Err(err).Fatal("bot api error")
	}
	log.Info("authorized on bot api", logger.Data{"username": client.Username()})

	wrkr := worker.New(cfg, db, client, scratchManager)
	q := queue.New(wrkr, queue.Options{
		Capacity:   cfg.WorkerProcesses,
		MaxPerUser: cfg.MaxQueuePerUser,
		OnTransition: func(job models.RenameJob, from, to string) {
			log.Debug("job transition", logger.Data{"job_id": job.ID, "user_id": job.UserID, "from": from, "to": to})
		},
	})
	dispatcher := bot.New(cfg, db, client, q)

	runCtx, stopRunning := context.WithCancel(ctx)
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(runCtx)
	}()
	log.Info("dispatcher started", logger.Data{"worker_processes": cfg.WorkerProcesses})

	sweeper, err := scratchManager.StartSweeper(cfg.ScratchSweepSchedule, cfg.ScratchMaxAge)
	if err != nil {
		log.Err(err).Fatal("scratch sweeper error")
	}

	var srv *http.Server
	if cfg.WebServer {
		srv, err = server.New(cfg, db, dispatcher, q)
		if err != nil {
			log.Err(err).Fatal("server error")
		}

		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", srv.Addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}
		log.Info("server started", logger.Data{"addr": listener.Addr().String()})

		go func() {
			err := srv.Serve(listener)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Err(err).Fatal("server stopped")
			}
			log.Info("server stopped")
		}()
	}

	if cfg.WebServer && cfg.WebhookURL != "" {
		if err := client.SetWebhook(ctx, cfg.WebhookEndpoint()); err != nil {
			log.Err(err).Fatal("failed to register webhook")
		}
		log.Info("webhook registered", logger.Data{"path": cfg.WebhookRoute()})
	} else {
		if err := client.DeleteWebhook(ctx); err != nil {
			log.Err(err).Fatal("failed to delete webhook")
		}
		go client.Poll(runCtx, dispatcher.SubmitWait)
		log.Info("polling for updates")
	}

	graceful := signals.Setup()

	<-graceful
	log.Info("starting graceful shutdown", logger.Data{"timeout": cfg.ShutdownTimeout.String()})

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Err(err).Error("server shutdown error")
		}
		log.Info("server shutdown")
	}

	stopRunning()
	<-dispatcherDone
	log.Info("dispatcher stopped")

	if err := q.Shutdown(shutdownCtx); err != nil {
		log.Err(err).Error("queue shutdown timed out, running jobs were cancelled")
	}
	log.Info("queue shutdown")

	<-sweeper.Stop().Done()

	if err := db.Close(); err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")

	if err := scratchManager.Unlock(); err != nil {
		log.Err(err).Error("scratch unlock error")
	}
}
