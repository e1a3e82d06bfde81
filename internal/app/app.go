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
	"go.uber.org/zap"

	"github.com/m-luck/meeting-pinger/internal/calendar"
	"github.com/m-luck/meeting-pinger/internal/config"
	"github.com/m-luck/meeting-pinger/internal/scheduler"
	"github.com/m-luck/meeting-pinger/internal/store"
	"github.com/m-luck/meeting-pinger/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
	router  *telegram.Router
	sched   *scheduler.Scheduler
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
	users, err := a.cfg.LoadUsers()
	if err != nil {
		a.log.Error("load users failed", zap.Error(err))
		return err
	}
	a.log.Info("starting meeting-pinger",
		zap.Int("users", len(users)),
		zap.String("http", a.cfg.HTTPAddr),
	)

	repo, err := store.Open(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("sqlite ready")

	a.sched = scheduler.New(scheduler.Params{
		Users:        users,
		Fetcher:      calendar.NewClient(a.log),
		Sender:       nil, // set below, the router is the sender
		Repo:         repo,
		Log:          a.log,
		TickInterval: a.cfg.PollInterval(),
		FetchTimeout: a.cfg.FetchTimeout(),
	})
	a.router = telegram.NewRouter(a.bot, a.log, repo, users, a.sched.Inbound())
	a.sched.SetSender(a.router)

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

	schedDone := make(chan struct{})
	go func() {
		a.sched.Run(ctx)
		close(schedDone)
	}()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")

			// Let any in-flight notification send finish before closing
			// shared resources.
			<-schedDone

			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.httpSrv.Shutdown(shCtx)
			cancel()
			if err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}
			if a.repo != nil {
				_ = a.repo.Close()
			}
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}
