package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dorshemer/yoman/internal/api"
	"github.com/dorshemer/yoman/internal/flow"
	"github.com/dorshemer/yoman/internal/genai"
	"github.com/dorshemer/yoman/internal/intent"
	"github.com/dorshemer/yoman/internal/messaging"
	"github.com/dorshemer/yoman/internal/models"
	"github.com/dorshemer/yoman/internal/scheduler"
	"github.com/dorshemer/yoman/internal/store"
	"github.com/dorshemer/yoman/internal/util"
	"github.com/dorshemer/yoman/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Yoman state data
	DefaultStateDir = "/var/lib/yoman"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "yoman.db"
	// DefaultTimezone is the timezone conversations are interpreted in
	DefaultTimezone = "Asia/Jerusalem"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping Yoman with configured modules")
	if err := run(flags); err != nil {
		slog.Error("Yoman failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Yoman exited successfully")
}

// Config holds environment configuration
type Config struct {
	WhatsAppDSN string
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	Timezone    string
	Backend     string
	TwilioSID   string
	TwilioToken string
	TwilioFrom  string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput *string
	numeric  *bool
	stateDir *string
	dbDSN    *string
	apiKey   *string
	apiAddr  *string
	timezone *string
	backend  *string

	twilioSID   string
	twilioToken string
	twilioFrom  string
}

// initializeLogger sets up structured logging with the level from $LOG_LEVEL
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(util.GetEnv("LOG_LEVEL", "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    util.GetEnv("YOMAN_STATE_DIR", DefaultStateDir),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		Timezone:    util.GetEnv("TIMEZONE", DefaultTimezone),
		Backend:     util.GetEnv("MESSAGING_BACKEND", "whatsapp"),
		TwilioSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:  os.Getenv("TWILIO_FROM_NUMBER"),
	}

	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.DatabaseURL
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	slog.Debug("environment variables loaded",
		"DSN_SET", config.WhatsAppDSN != "",
		"YOMAN_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"TIMEZONE", config.Timezone,
		"MESSAGING_BACKEND", config.Backend)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput: flag.String("qr-output", "", "path to write login QR code"),
		numeric:  flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir: flag.String("state-dir", config.StateDir, "state directory for Yoman data (overrides $YOMAN_STATE_DIR)"),
		dbDSN:    flag.String("db-dsn", config.WhatsAppDSN, "database DSN for WhatsApp and the store (overrides $WHATSAPP_DB_DSN or $DATABASE_URL)"),
		apiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "admin API server address (overrides $API_ADDR)"),
		timezone: flag.String("timezone", config.Timezone, "IANA timezone for conversations (overrides $TIMEZONE)"),
		backend:  flag.String("backend", config.Backend, "messaging backend: whatsapp or twilio (overrides $MESSAGING_BACKEND)"),

		twilioSID:   config.TwilioSID,
		twilioToken: config.TwilioToken,
		twilioFrom:  config.TwilioFrom,
	}

	flag.Parse()

	if *flags.dbDSN == config.WhatsAppDSN && config.WhatsAppDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}
	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildStore opens the storage backend matching the DSN type.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		st, err := store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	st, err := store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
	if err != nil {
		return nil, err
	}
	return st, nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.dbDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	}
	return waOpts
}

// buildMessagingService constructs the transport selected by the backend flag.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	if *flags.backend == "twilio" {
		return messaging.NewTwilioService(
			messaging.WithTwilioCredentials(flags.twilioSID, flags.twilioToken),
			messaging.WithTwilioFromNumber(flags.twilioFrom),
		)
	}
	waClient, err := whatsapp.NewClient(buildWhatsAppOptions(flags)...)
	if err != nil {
		return nil, err
	}
	return messaging.NewWhatsAppService(waClient), nil
}

func run(flags Flags) error {
	loc, err := time.LoadLocation(*flags.timezone)
	if err != nil {
		return err
	}

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	classifier, err := genai.NewClient(genai.WithAPIKey(*flags.apiKey))
	if err != nil {
		return err
	}
	pipeline := intent.NewPipeline(classifier, st, st, intent.WithTimezone(*flags.timezone))

	msgService, err := buildMessagingService(flags)
	if err != nil {
		return err
	}

	sched := scheduler.NewService(func(rem models.Reminder, to string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := msgService.SendMessage(ctx, to, "⏰ תזכורת: "+rem.Title); err != nil {
			slog.Error("reminder notification failed", "error", err, "reminderID", rem.ID, "to", to)
		}
	}, scheduler.WithLocation(loc), scheduler.WithCompletionFunc(func(rem models.Reminder) {
		rem.Active = false
		rem.UpdatedAt = time.Now()
		if err := st.UpdateReminder(rem); err != nil {
			slog.Warn("failed to retire fired reminder", "error", err, "reminderID", rem.ID)
		}
	}))

	machine := flow.NewMachine(flow.Deps{
		Sessions:  st,
		Events:    st,
		Reminders: st,
		Tasks:     st,
		Counters:  st,
		Resolver:  pipeline,
		Messenger: msgService,
		Scheduler: sched,
	}, flow.WithLocation(loc))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	sched.Start()
	defer sched.Stop()

	// Re-arm firings for reminders that were active before the restart.
	// One-offs that came due while the process was down are retired
	// rather than fired late.
	active, err := st.ListAllActiveReminders()
	if err != nil {
		return err
	}
	stale, err := sched.Restore(active)
	if err != nil {
		return err
	}
	for _, rem := range stale {
		rem.Active = false
		rem.UpdatedAt = time.Now()
		if err := st.UpdateReminder(rem); err != nil {
			slog.Warn("failed to retire stale reminder", "error", err, "reminderID", rem.ID)
		}
	}
	slog.Info("re-armed active reminders", "count", len(active)-len(stale), "stale", len(stale))

	router := messaging.NewRouter(msgService, machine)
	router.Start(ctx)
	defer router.Stop()

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(st, msgService, apiOpts...)
	return server.Run(ctx)
}
