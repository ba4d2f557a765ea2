package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/zlog"

	"github.com/clinicore/reminder-service/internal/api/handlers/appointment"
	"github.com/clinicore/reminder-service/internal/api/router"
	"github.com/clinicore/reminder-service/internal/api/server"
	"github.com/clinicore/reminder-service/internal/config"
	"github.com/clinicore/reminder-service/internal/delivery"
	"github.com/clinicore/reminder-service/internal/model"
	apptrepo "github.com/clinicore/reminder-service/internal/repository/appointment"
	remrepo "github.com/clinicore/reminder-service/internal/repository/reminder"
	remsvc "github.com/clinicore/reminder-service/internal/service/reminder"
	"github.com/clinicore/reminder-service/internal/worker"
	"github.com/clinicore/reminder-service/pkg/mailer"
	"github.com/clinicore/reminder-service/pkg/sms"
	"github.com/clinicore/reminder-service/pkg/whatsapp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()
	val := validator.New()

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to load clinic timezone")
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	reminderRepo := remrepo.NewRepository(db)
	appointmentRepo := apptrepo.NewRepository(db)

	dbNum, err := strconv.Atoi(cfg.Redis.Database)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to parse redis database")
	}

	rdb := redis.New(cfg.Redis.Address, cfg.Redis.Password, dbNum)

	if err = rdb.Ping(ctx).Err(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	smtpPort, err := strconv.Atoi(cfg.Email.SMTPPort)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to parse email smtp port")
	}

	mailerClient := mailer.NewClient(
		cfg.Email.SMTPHost,
		smtpPort,
		cfg.Email.Username,
		cfg.Email.Password,
		cfg.Email.From,
	)
	smsClient := sms.NewClient(cfg.SMS.APIURL, cfg.SMS.APIKey, cfg.SMS.From)
	whatsappClient := whatsapp.NewClient(cfg.WhatsApp.APIURL, cfg.WhatsApp.Token)

	transports := map[model.Kind]delivery.Transport{
		model.KindEmailReminder:        mailerClient,
		model.KindSMSReminder:          smsClient,
		model.KindWhatsAppConfirmation: whatsappClient,
	}

	service := remsvc.NewService(
		reminderRepo,
		appointmentRepo,
		rdb,
		loc,
		cfg.Scheduler.SendHour,
		cfg.Scheduler.LeadDays,
	)

	deliveryWorker := delivery.NewWorker(
		transports,
		appointmentRepo,
		cfg.Delivery.Attempts,
		cfg.Delivery.BaseDelay,
		cfg.Delivery.MaxDelay,
	)

	dispatcher := worker.NewDispatcher(
		reminderRepo,
		service,
		deliveryWorker,
		cfg.Retry,
		cfg.Scheduler.Interval,
		cfg.Scheduler.BatchSize,
		cfg.Scheduler.ClaimTimeout,
	)

	go dispatcher.Run(ctx)

	apptHandler := appointment.NewHandler(service, val, cfg, loc)

	r := router.New(apptHandler)
	s := server.New(cfg.Server.HTTPPort, r)

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}

	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}
}
