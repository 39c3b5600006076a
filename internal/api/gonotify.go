package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-notify/internal/config"
	"github.com/npezzotti/go-notify/internal/database"
	"github.com/npezzotti/go-notify/internal/delta"
	"github.com/npezzotti/go-notify/internal/events"
	"github.com/npezzotti/go-notify/internal/projection"
	"github.com/npezzotti/go-notify/internal/server"
	"github.com/npezzotti/go-notify/internal/sms"
	"github.com/npezzotti/go-notify/internal/stats"
)

type GoNotifyApp struct {
	log            *log.Logger
	db             database.GoNotifyRepository
	srv            *http.Server
	hub            *server.NotifyServer
	hints          events.Publisher
	stats          stats.StatsProvider
	maintainer     *projection.Maintainer
	syncer         *delta.Service
	signingKey     []byte
	allowedOrigins []string
}

// NewGoNotifyApp wires the HTTP routes onto mux. Sync hints go to hints when
// it is set and to the local hub otherwise.
func NewGoNotifyApp(
	mux *http.ServeMux,
	logger *log.Logger,
	db database.GoNotifyRepository,
	hub *server.NotifyServer,
	hints events.Publisher,
	su stats.StatsProvider,
	sender sms.Sender,
	cfg *config.Config,
) *GoNotifyApp {
	s := &GoNotifyApp{
		log:            logger,
		db:             db,
		hub:            hub,
		hints:          hints,
		stats:          su,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}
	if s.hints == nil && hub != nil {
		s.hints = hub
	}

	s.maintainer = projection.New(db, sender, logger,
		projection.WithSenderReadsOwnMessages(cfg.SenderReadsOwnMessages),
		projection.WithLinkURL(cfg.LinkURL),
	)
	s.syncer = delta.NewService(db, logger,
		delta.WithPageSize(cfg.PageSize),
		delta.WithCheckpointLag(cfg.DatabaseTimeout),
	)

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("GET /api/sync", s.authMiddleware(s.sync))
	mux.Handle("GET /api/sync/{channelId}", s.authMiddleware(s.syncMessages))
	mux.Handle("PATCH /api/sync/{channelId}/lastMessageVisited", s.authMiddleware(s.lastMessageVisited))
	mux.Handle("GET /api/channels", s.authMiddleware(s.listChannels))
	mux.Handle("POST /api/channels", s.authMiddleware(s.createChannel))
	mux.Handle("GET /api/channels/{channelId}", s.authMiddleware(s.getChannel))
	mux.Handle("PATCH /api/channels/{channelId}", s.authMiddleware(s.editChannel))
	mux.Handle("DELETE /api/channels/{channelId}", s.authMiddleware(s.deleteChannel))
	mux.Handle("GET /api/channels/{channelId}/messages", s.authMiddleware(s.listMessages))
	mux.Handle("POST /api/channels/{channelId}/messages", s.authMiddleware(s.createMessage))
	mux.Handle("GET /api/channels/{channelId}/messages/{messageId}", s.authMiddleware(s.getMessage))
	mux.Handle("PATCH /api/channels/{channelId}/messages/{messageId}", s.authMiddleware(s.editMessage))
	mux.Handle("DELETE /api/channels/{channelId}/messages/{messageId}", s.authMiddleware(s.deleteMessage))
	mux.Handle("GET /api/channels/{channelId}/members", s.authMiddleware(s.listMembers))
	mux.Handle("POST /api/channels/{channelId}/members", s.authMiddleware(s.addMembers))
	mux.Handle("DELETE /api/channels/{channelId}/members", s.authMiddleware(s.removeMembers))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// Handler returns the fully wrapped handler served by Start.
func (s *GoNotifyApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *GoNotifyApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *GoNotifyApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
