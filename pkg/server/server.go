package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KyleBrandon/lbis-server/config"
	"github.com/KyleBrandon/lbis-server/internal/accounting"
	"github.com/KyleBrandon/lbis-server/internal/actuator"
	"github.com/KyleBrandon/lbis-server/internal/alerts"
	"github.com/KyleBrandon/lbis-server/internal/database"
	"github.com/KyleBrandon/lbis-server/internal/jobs"
	"github.com/KyleBrandon/lbis-server/internal/latch"
	"github.com/KyleBrandon/lbis-server/internal/pump"
	"github.com/KyleBrandon/lbis-server/internal/state"
	"github.com/KyleBrandon/lbis-server/pkg/server/commands"
	"github.com/KyleBrandon/lbis-server/pkg/server/health"
	"github.com/KyleBrandon/lbis-server/pkg/server/history"
	"github.com/KyleBrandon/lbis-server/pkg/server/monitor"
	"github.com/KyleBrandon/lbis-server/pkg/server/status"
	"github.com/KyleBrandon/lbis-server/pkg/utils"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	DEFAULT_SERVER_PORT          = "8080"
	DEFAULT_CONFIG_FILE_LOCATION = "./config/config.json"

	shutdownTimeout  = 10 * time.Second
	feedReadyTimeout = 5 * time.Second
)

// Flags are the command line settings for serve.
type Flags struct {
	LogLevel        string
	UseMockActuator bool
}

type ServerConfig struct {
	mux                *http.ServeMux
	ServerPort         string
	DatabaseURL        string
	UseMockActuator    bool
	LogFileLocation    string
	ConfigFileLocation string
	PprofAddress       string
	Logger             *slog.Logger
	LoggerLevel        *slog.LevelVar
	LogFile            *os.File
	Settings           config.Config

	DBConnection *sql.DB
	Queries      *database.Queries

	store      *state.Store
	engine     *accounting.Engine
	link       *actuator.Reachability
	recorder   *jobs.Recorder
	actuator   actuator.Actuator
	feed       *actuator.Feed
	supervisor *pump.Supervisor
	latch      *latch.Controller
	alerts     *alerts.Alerts
	mctx       *monitor.MonitorContext
	status     *status.Handler
}

// InitializeServer loads configuration and builds every component. Nothing
// is serving until Run is called.
func InitializeServer(flags Flags) (*ServerConfig, error) {
	slog.Debug(">>InitializeServer")
	defer slog.Debug("<<InitializeServer")

	sc := &ServerConfig{}

	// MUST BE FIRST
	sc.readEnvironmentVariables(flags)

	if err := sc.configureLogger(flags.LogLevel); err != nil {
		return nil, err
	}

	settings, err := config.LoadConfigSettings(sc.ConfigFileLocation)
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("load config: %w", err)
	}
	sc.Settings = settings

	if err := sc.openDatabase(); err != nil {
		sc.Close()
		return nil, err
	}

	if err := sc.buildComponents(); err != nil {
		sc.Close()
		return nil, err
	}

	sc.registerRoutes()

	return sc, nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// every component down.
func (sc *ServerConfig) Run(ctx context.Context) error {
	slog.Info(">>runServer")
	defer slog.Info("<<runServer")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", sc.ServerPort),
		Handler: sc.mux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting server", "port", sc.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if sc.feed != nil {
		g.Go(func() error {
			sc.feed.Run(gctx)
			return nil
		})

		g.Go(func() error {
			if err := sc.feed.WaitReady(gctx, feedReadyTimeout); err != nil {
				slog.Warn("pump feed is not ready yet, status will fall back to polling", "error", err)
			}
			return nil
		})
	}

	if len(sc.PprofAddress) != 0 {
		g.Go(func() error {
			debug := &http.Server{Addr: sc.PprofAddress, Handler: http.DefaultServeMux}
			go func() {
				<-gctx.Done()
				debug.Close()
			}()
			if err := debug.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("pprof listener failed", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()

	sc.Close()

	return err
}

// Close stops the background components and releases files and connections.
func (sc *ServerConfig) Close() {
	slog.Debug(">>Close")
	defer slog.Debug("<<Close")

	if sc.mctx != nil {
		sc.mctx.CancelAndWait()
	}

	if sc.supervisor != nil {
		sc.supervisor.Shutdown()
	}

	if sc.latch != nil {
		sc.latch.Stop()
	}

	if sc.alerts != nil {
		sc.alerts.CancelAndWait()
	}

	if sc.DBConnection != nil {
		sc.DBConnection.Close()
	}

	if sc.LogFile != nil && sc.LogFile != os.Stderr {
		sc.LogFile.Close()
	}
}

func (sc *ServerConfig) buildComponents() error {
	slog.Debug(">>buildComponents")
	defer slog.Debug("<<buildComponents")

	cfg := sc.Settings

	sc.store = state.NewStore(cfg.StateFile, cfg.Limits.DefaultSessionTime)
	if err := sc.store.Load(); err != nil {
		slog.Error("failed to load state, continuing with defaults", "error", err)
	}

	// builder is attached once the supervisor exists
	sc.status = status.NewHandler(nil, cfg.OriginPatterns)

	sc.engine = accounting.NewEngine(sc.store, accounting.Limits{
		MaxSessionExtension: cfg.Limits.MaxSessionExtension,
		MaxSessionTime:      cfg.Limits.MaxSessionTime,
		MaxBankedTime:       cfg.Limits.MaxBankedTime,
	}, sc.status)

	actuatorCfg := actuator.Config{
		Driver:  cfg.Actuator.Driver,
		BaseURL: cfg.Actuator.BaseURL,
		Timeout: cfg.Actuator.Timeout,
		PumpDevice: actuator.DeviceConfig{
			Address:    cfg.Actuator.PumpAddress,
			Name:       cfg.Actuator.PumpName,
			NormallyOn: cfg.Actuator.NormallyOn,
		},
		UseFeed:        cfg.Actuator.UseFeed,
		ReconnectDelay: cfg.Actuator.ReconnectDelay,
	}
	if sc.UseMockActuator {
		slog.Warn("using the mock actuator")
		actuatorCfg.Driver = actuator.DRIVER_MOCK
		actuatorCfg.UseFeed = false
	}

	act, err := actuator.NewActuator(actuatorCfg)
	if err != nil {
		return fmt.Errorf("create actuator: %w", err)
	}
	sc.actuator = act
	sc.link = actuator.NewReachability()

	if actuatorCfg.UseFeed && actuatorCfg.Driver != actuator.DRIVER_GPIO {
		sc.feed = actuator.NewFeed(actuatorCfg.BaseURL, actuatorCfg.ReconnectDelay)
	}

	sc.recorder = jobs.NewRecorder(nil)
	if sc.Queries != nil {
		sc.recorder = jobs.NewRecorder(sc.Queries)
	}

	sc.supervisor = pump.NewSupervisor(sc.engine, sc.store, act, sc.link, sc.recorder, sc.status, pump.Config{
		MaxPumpDuration: time.Duration(cfg.Limits.MaxPumpDuration) * time.Second,
		ActuatorTimeout: cfg.Actuator.Timeout,
	})
	sc.engine.AttachPump(sc.supervisor)

	var sender alerts.Sender
	notifier, err := alerts.NewNotifier(alerts.Config{
		DiscordBotToken:  cfg.Discord.BotToken,
		DiscordChannelID: cfg.Discord.ChannelID,
		TwilioAccountSID: cfg.Twilio.AccountSID,
		TwilioAuthToken:  cfg.Twilio.AuthToken,
		TwilioFromPhone:  cfg.Twilio.FromPhone,
		TwilioToPhone:    cfg.Twilio.ToPhone,
	})
	switch {
	case errors.Is(err, alerts.ErrNoServices):
		slog.Warn("no notification services configured, alerts will only be logged")
	case err != nil:
		return fmt.Errorf("create notifier: %w", err)
	default:
		sender = notifier
	}

	sc.alerts = alerts.New(sender, alerts.DefaultSubject)
	sc.alerts.Start()

	sc.latch = latch.NewController(sc.store, act, sc.alerts, sc.status)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Actuator.Timeout+time.Second)
	defer cancel()
	sc.supervisor.Recover(ctx)
	sc.latch.Restore()

	var feed status.FeedSource
	if sc.feed != nil {
		feed = sc.feed
	}
	sc.status.AttachBuilder(status.NewBuilder(sc.store, sc.supervisor, sc.link, feed, act))

	sc.mctx = monitor.InitializeMonitorContext(monitor.MonitorConfig{
		Prober:        act,
		Link:          sc.link,
		Accruer:       sc.supervisor,
		Notifier:      sc.alerts,
		Refresher:     sc.status,
		ProbeInterval: cfg.Monitor.ProbeInterval,
		ProbeTimeout:  cfg.Monitor.ProbeTimeout,
		TickInterval:  cfg.Monitor.TickInterval,
	})

	return nil
}

func (sc *ServerConfig) registerRoutes() {
	sc.mux = http.NewServeMux()

	healthHandler := health.NewHandler(sc.LoggerLevel)
	healthHandler.RegisterRoutes(sc.mux)

	sc.status.RegisterRoutes(sc.mux)

	historyHandler := history.NewHandler(sc.recorder)
	historyHandler.RegisterRoutes(sc.mux)

	commandHandler := commands.NewHandler(commands.Config{
		ApiKey:              sc.Settings.ApiKey,
		WearerSecret:        sc.Settings.WearerSecret,
		PrivilegedIDs:       sc.Settings.PrivilegedIDs,
		DefaultPumpDuration: sc.Settings.Limits.DefaultPumpDuration,
		MaxSessionTotal:     sc.Settings.Limits.MaxSessionTotal,
	}, commands.Services{
		Accounting: sc.engine,
		Latch:      sc.latch,
		Pump:       sc.supervisor,
		Device:     sc.actuator,
		Describer:  sc.status.Builder(),
		Wearers:    sc.store,
		Notifier:   sc.alerts,
		Refresher:  sc.status,
	})
	commandHandler.RegisterRoutes(sc.mux)

	if len(sc.Settings.ApiKey) == 0 {
		slog.Warn("no api key configured, the command endpoint will reject every request")
	}
}

func (sc *ServerConfig) readEnvironmentVariables(flags Flags) {
	slog.Info(">>loadConfiguration")
	defer slog.Info("<<loadConfiguration")

	// load the environment
	err := godotenv.Load()
	if err != nil {
		slog.Warn("could not load .env file", "error", err)
	}

	sc.DatabaseURL = os.Getenv("DATABASE_URL")
	if len(sc.DatabaseURL) == 0 {
		slog.Warn("no database connection string is configured, run history is disabled")
	}

	sc.ServerPort = os.Getenv("PORT")
	if len(sc.ServerPort) == 0 {
		sc.ServerPort = DEFAULT_SERVER_PORT
	}

	sc.LogFileLocation = os.Getenv("LOG_FILE_LOCATION")
	sc.PprofAddress = os.Getenv("PPROF_ADDRESS")

	sc.ConfigFileLocation = os.Getenv("CONFIG_FILE_LOCATION")
	if len(sc.ConfigFileLocation) == 0 {
		sc.ConfigFileLocation = DEFAULT_CONFIG_FILE_LOCATION
	}

	// mock actuator flag is a command line flag for debugging
	sc.UseMockActuator = flags.UseMockActuator
}

// configureLogger will initialize the slog to stderr and save the log level so it can be set via API.
func (sc *ServerConfig) configureLogger(logLevel string) error {
	slog.Info(">>configureLogger")
	defer slog.Info("<<configureLogger")

	currentLevel := new(slog.LevelVar)

	level, err := utils.ParseLogLevel(logLevel)
	if err != nil {
		slog.Error("Failed to parse the log level, setting to DefaultLogLevel", "error", err, "log_level", logLevel)
		level = config.DefaultLogLevel
	}

	currentLevel.Set(level)

	// by default we will write to stderr
	logFile := os.Stderr
	if len(sc.LogFileLocation) != 0 {
		slog.Info("Save to log file", "file", sc.LogFileLocation)
		logFile, err = os.OpenFile(sc.LogFileLocation, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", sc.LogFileLocation, err)
		}
	}

	handler := slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: currentLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	sc.Logger = logger
	sc.LoggerLevel = currentLevel
	sc.LogFile = logFile

	return nil
}

func (sc *ServerConfig) openDatabase() error {
	if len(sc.DatabaseURL) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, queries, err := database.Open(ctx, sc.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sc.DBConnection = db
	sc.Queries = queries

	return nil
}
