package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"amici-chat/internal/auth"
	"amici-chat/internal/config"
	"amici-chat/internal/db"
	"amici-chat/internal/delivery"
	"amici-chat/internal/grpcserver"
	"amici-chat/internal/handlers"
	"amici-chat/internal/logging"
	"amici-chat/internal/messaging"
	"amici-chat/internal/middleware"
	"amici-chat/internal/models"
	"amici-chat/internal/observability"
	"amici-chat/internal/presence"
	"amici-chat/internal/rabbitmq"
	"amici-chat/internal/registry"
	"amici-chat/internal/repositories"
	"amici-chat/internal/storage"
	"amici-chat/internal/streaming"
	"amici-chat/internal/telemetry"
	"amici-chat/internal/ws"
)

const (
	auditRoutingKey = "audit.chat"
	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, websocket and gRPC health servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	serveCmd.Flags().String("http-addr", ":8083", "HTTP listen address")
	serveCmd.Flags().String("grpc-addr", ":8093", "gRPC health listen address")
	serveCmd.Flags().String("store", config.StorePostgres, "message store: postgres or memory")
	_ = v.BindPFlag("http.addr", serveCmd.Flags().Lookup("http-addr"))
	_ = v.BindPFlag("grpc.addr", serveCmd.Flags().Lookup("grpc-addr"))
	_ = v.BindPFlag("store", serveCmd.Flags().Lookup("store"))
	rootCmd.AddCommand(serveCmd)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// stores bundles the three repositories behind one backend.
type stores struct {
	channels repositories.ChannelRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	ping     handlers.Pinger
	close    func() error
}

func openStores(ctx context.Context, cfg *config.Config, log logging.Logger) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		mem := repositories.NewMemoryStore()
		for _, id := range cfg.SeedUsers {
			mem.AddUser(models.User{ID: id, Email: id + "@local"})
		}
		log.Info(ctx, "using in-memory store", "seeded_users", len(cfg.SeedUsers))
		return &stores{
			channels: mem,
			messages: mem,
			users:    mem,
			close:    func() error { return nil },
		}, nil
	}

	database, err := db.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, err
	}
	log.Info(ctx, "postgres connected, migrations applied")
	return &stores{
		channels: repositories.NewChannelRepo(database),
		messages: repositories.NewMessageRepo(database),
		users:    repositories.NewUserRepo(database),
		ping:     pingFunc(database.PingContext),
		close:    database.Close,
	}, nil
}

func serve(ctx context.Context, cfg *config.Config, log logging.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Service, cfg.Environment, cfg.OTELEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer func() { _ = publisher.Close() }()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.Service, cfg.Environment, log)
	log.Info(ctx, "event publisher ready", "mode", rabbitmq.PublisherMode(publisher))

	reg := registry.New(cfg.RegistryShards)
	deps := map[string]handlers.Pinger{}
	if st.ping != nil {
		deps["postgres"] = st.ping
	}

	var tracker presence.Tracker = presence.NewLocalTracker(reg)
	if cfg.RedisAddr != "" {
		rt := presence.NewRedisTracker(cfg.RedisAddr)
		defer func() { _ = rt.Close() }()
		if err := rt.Ping(ctx); err != nil {
			log.Warn(ctx, "redis unreachable at startup", "error", err)
		}
		tracker = rt
		deps["redis"] = rt
	}

	var stream streaming.MessageLog = streaming.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		stream = streaming.NewKafkaLog(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		log.Info(ctx, "message log enabled", "topic", cfg.KafkaTopic)
	}
	defer func() { _ = stream.Close() }()

	var uploader storage.Uploader
	if cfg.S3.Bucket != "" {
		s3u, err := storage.NewS3Uploader(ctx, cfg.S3)
		if err != nil {
			return err
		}
		uploader = s3u
	}

	tokens := auth.NewJWT(cfg.JWTSecret, cfg.TokenTTL)
	hub := ws.NewHub()
	router := delivery.NewRouter(reg, st.channels, log, cfg.WS.EchoToOrigin)
	svc := messaging.NewService(st.messages, st.channels, st.users, router, stream, log)
	wsHandler := ws.NewHandler(reg, hub, st.channels, svc, tokens, tracker, log, cfg.WS)
	router.OnEvict(wsHandler.Evicted)

	engine := newEngine(cfg, engineDeps{
		tokens:   tokens,
		ws:       wsHandler,
		channels: handlers.NewChannelHandler(st.channels, st.messages, st.users, router, hub, audit),
		messages: handlers.NewMessageHandler(st.messages, svc, uploader, audit),
		contacts: handlers.NewContactsHandler(st.messages, tracker),
		audit:    audit,
		health:   deps,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv := grpcserver.New(cfg.Service, log)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info(ctx, "http server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(ctx, grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	grpcSrv.SetServing(true)

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down")
	case err = <-errCh:
		log.Error(context.Background(), "server failed", "error", err)
	}

	grpcSrv.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		log.Warn(shutdownCtx, "http shutdown", "error", serr)
	}
	grpcSrv.Stop()
	return err
}

type engineDeps struct {
	tokens   auth.TokenValidator
	ws       *ws.Handler
	channels *handlers.ChannelHandler
	messages *handlers.MessageHandler
	contacts *handlers.ContactsHandler
	audit    *telemetry.AuditEmitter
	health   map[string]handlers.Pinger
}

func newEngine(cfg *config.Config, d engineDeps) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.Service))
	r.Use(middleware.RequestID())
	r.Use(observability.HTTPMetricsMiddleware())

	handlers.RegisterHealthRoute(r, d.health)
	r.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	handlers.RegisterDebugRoutes(r, d.audit, cfg.DebugRoutes)
	r.GET("/ws", d.ws.Handle)

	api := r.Group("/api", middleware.AuthMiddleware(d.tokens))

	messages := api.Group("/messages")
	messages.POST("/get-messages", d.messages.GetMessages)
	messages.POST("/send", d.messages.SendMessage)
	messages.POST("/upload-file", d.messages.UploadFile)

	contacts := api.Group("/contacts")
	contacts.GET("/get-contacts-for-dm", d.contacts.GetContactsForDM)
	contacts.GET("/presence", d.contacts.Presence)

	channel := api.Group("/channel")
	channel.POST("/create-channel", d.channels.CreateChannel)
	channel.GET("/get-user-channels", d.channels.GetUserChannels)
	channel.GET("/get-channel-messages/:channelId", d.channels.GetChannelMessages)
	channel.GET("/get-channel-members/:channelId", d.channels.GetChannelMembers)
	channel.POST("/leave-channel/:channelId", d.channels.LeaveChannel)
	channel.DELETE("/delete-channel/:channelId", d.channels.DeleteChannel)
	channel.POST("/remove-member", d.channels.RemoveMember)
	channel.POST("/add-members", d.channels.AddMembers)
	channel.GET("/search-users", d.channels.SearchUsers)

	return r
}
