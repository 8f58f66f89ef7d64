package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/punithbm/attendance-bot/internal/attendance"
	"github.com/punithbm/attendance-bot/internal/billing"
	"github.com/punithbm/attendance-bot/internal/config"
	"github.com/punithbm/attendance-bot/internal/store"
	"github.com/punithbm/attendance-bot/internal/telegram"
	"github.com/punithbm/attendance-bot/internal/zoom"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	store   store.Store
	router  *telegram.Router
	cron    *cron.Cron
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, httpSrv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting attendance-bot", zap.String("http", a.cfg.HTTPAddr))

	st, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.store = st
	a.log.Info("sqlite ready")

	eng := billing.New(a.store, a.log, a.cfg.CooldownDays, a.cfg.DueListLimit)

	batches, err := attendance.NewBatchTable(a.cfg.BatchMeetings)
	if err != nil {
		a.log.Error("bad batch mapping", zap.Error(err))
		return err
	}
	zc := zoom.NewClient(zoom.Config{
		AccountID:    a.cfg.ZoomAccountID,
		ClientID:     a.cfg.ZoomClientID,
		ClientSecret: a.cfg.ZoomClientSecret,
	}, a.log)
	reporter := attendance.NewReporter(zc, batches, a.cfg.ZoomHostEmail,
		a.cfg.TZOffsetMin, a.cfg.ExcludedNames, a.log)

	a.router = telegram.NewRouter(a.bot, a.log, eng, reporter, a.cfg.AuthorizedUsers)

	if a.cfg.ReportCron != "" && a.cfg.AdminChatID != 0 {
		a.cron = cron.New()
		_, err := a.cron.AddFunc(a.cfg.ReportCron, func() {
			jctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			a.router.SendReport(jctx, a.cfg.AdminChatID)
		})
		if err != nil {
			a.log.Error("bad report schedule", zap.String("cron", a.cfg.ReportCron), zap.Error(err))
			return err
		}
		a.cron.Start()
		a.log.Info("daily report scheduled", zap.String("cron", a.cfg.ReportCron))
	}

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")

			if a.cron != nil {
				<-a.cron.Stop().Done()
			}

			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.httpSrv.Shutdown(shCtx)
			cancel()

			if err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}
			if a.store != nil {
				_ = a.store.Close()
			}
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}
