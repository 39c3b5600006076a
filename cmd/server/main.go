package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-notify/internal/api"
	"github.com/npezzotti/go-notify/internal/config"
	"github.com/npezzotti/go-notify/internal/database"
	"github.com/npezzotti/go-notify/internal/events"
	"github.com/npezzotti/go-notify/internal/server"
	"github.com/npezzotti/go-notify/internal/sms"
	"github.com/npezzotti/go-notify/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}

var (
	addr                   string
	dsn                    string
	signingKey             string
	allowedOrigins         stringSliceFlag
	pageSize               int
	dbTimeout              time.Duration
	smsApiURL              string
	smsApiKey              string
	smsLineNumber          string
	smsTimeout             time.Duration
	redisURL               string
	senderReadsOwnMessages bool
	linkURL                string
)

func main() {
	flag.StringVar(&addr, "addr", envOr("GONOTIFY_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("GONOTIFY_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", os.Getenv("GONOTIFY_SIGNING_KEY"), "base64 encoded token signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.IntVar(&pageSize, "page-size", envInt("GONOTIFY_PAGE_SIZE", config.DefaultPageSize), "messages per sync page")
	flag.DurationVar(&dbTimeout, "db-timeout", envDuration("GONOTIFY_DB_TIMEOUT", config.DefaultDatabaseTimeout), "database operation timeout")
	flag.StringVar(&smsApiURL, "sms-api-url", os.Getenv("GONOTIFY_SMS_API_URL"), "sms provider endpoint, sms is disabled when empty")
	flag.StringVar(&smsApiKey, "sms-api-key", os.Getenv("GONOTIFY_SMS_API_KEY"), "sms provider api key")
	flag.StringVar(&smsLineNumber, "sms-line-number", os.Getenv("GONOTIFY_SMS_LINE_NUMBER"), "sms sender line number")
	flag.DurationVar(&smsTimeout, "sms-timeout", envDuration("GONOTIFY_SMS_TIMEOUT", config.DefaultSmsTimeout), "sms provider request timeout")
	flag.StringVar(&redisURL, "redis-url", os.Getenv("GONOTIFY_REDIS_URL"), "redis url for sync hint fan-out across instances")
	flag.BoolVar(&senderReadsOwnMessages, "sender-reads-own-messages", envBool("GONOTIFY_SENDER_READS_OWN_MESSAGES", false), "mark new messages as read for their sender")
	flag.StringVar(&linkURL, "link-url", os.Getenv("GONOTIFY_LINK_URL"), "link placed at the top of sms notifications")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if v := os.Getenv("GONOTIFY_ALLOWED_ORIGINS"); v != "" {
			allowedOrigins.Set(v)
		}
	}

	logger := log.New(os.Stdout, "[go-notify] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins,
		config.WithPageSize(pageSize),
		config.WithDatabaseTimeout(dbTimeout),
		config.WithSms(config.SmsConfig{
			ApiURL:     smsApiURL,
			ApiKey:     smsApiKey,
			LineNumber: smsLineNumber,
			Timeout:    smsTimeout,
		}),
		config.WithRedisURL(redisURL),
		config.WithSenderReadsOwnMessages(senderReadsOwnMessages),
		config.WithLinkURL(linkURL),
	)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgGoNotifyRepository(cfg.DatabaseDSN, cfg.DatabaseTimeout)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if err := database.Migrate(dbConn.DB()); err != nil {
		logger.Fatal("migrate:", err)
	}

	var sender sms.Sender
	if cfg.Sms.Enabled() {
		sender = sms.NewHTTPSender(cfg.Sms.ApiURL, cfg.Sms.ApiKey, cfg.Sms.LineNumber, cfg.Sms.Timeout)
	} else {
		logger.Println("sms api url not set, sms notifications are disabled")
		sender = sms.Disabled()
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	hub := server.NewNotifyServer(logger, statsUpdater)
	go hub.Run()

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()

	var hints events.Publisher
	if cfg.RedisURL != "" {
		bus, err := events.NewRedisBus(cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("redis:", err)
		}
		defer bus.Close()

		sub, err := bus.Subscribe(relayCtx)
		if err != nil {
			logger.Fatal("redis subscribe:", err)
		}
		defer sub.Close()
		go sub.Relay(relayCtx, hub)

		hints = bus
		logger.Printf("relaying sync hints through redis channel %s", events.HintChannel)
	}

	srv := api.NewGoNotifyApp(mux, logger, dbConn, hub, hints, statsUpdater, sender, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	stopRelay()

	logger.Println("shutting down notify server...")
	if err := hub.Shutdown(shutDownCtx); err != nil {
		logger.Println("notify server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
