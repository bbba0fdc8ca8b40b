package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"twofactor-session/internal/audit"
	auditrepo "twofactor-session/internal/audit/repository"
	"twofactor-session/internal/captcha"
	"twofactor-session/internal/config"
	"twofactor-session/internal/db"
	healthhandler "twofactor-session/internal/health/handler"
	identityservice "twofactor-session/internal/identity/service"
	"twofactor-session/internal/logging"
	"twofactor-session/internal/mfa"
	mfarepo "twofactor-session/internal/mfa/repository"
	mfaintentrepo "twofactor-session/internal/mfaintent/repository"
	"twofactor-session/internal/observability/metrics"
	policyengine "twofactor-session/internal/policy/engine"
	"twofactor-session/internal/ratelimit"
	"twofactor-session/internal/security"
	"twofactor-session/internal/server"
	"twofactor-session/internal/server/httpx"
	"twofactor-session/internal/server/middleware"
	sessionrepo "twofactor-session/internal/session/repository"
	sessionservice "twofactor-session/internal/session/service"
	"twofactor-session/internal/telemetry"
	telemetryotel "twofactor-session/internal/telemetry/otel"
	"twofactor-session/internal/telemetry/producer"
	userrepo "twofactor-session/internal/user/repository"
)

const serviceName = "twofactor-session"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(logging.Config{ServiceName: serviceName, Environment: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.Env, cfg.OTLPInsecure, logger)
	if err != nil {
		logger.Fatal("otel providers", zap.Error(err))
	}
	providers.SetGlobal()
	metrics.MustRegister(prometheus.DefaultRegisterer, serviceName)

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	intents := mfaintentrepo.NewPostgresRepository(conn)
	recoveryCodes := mfarepo.NewPostgresRepository(conn)

	priv, pub, ephemeral, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		logger.Fatal("signing key", zap.Error(err))
	}
	if ephemeral {
		logger.Warn("JWT_PRIVATE_KEY not set; using an ephemeral key, pending logins will not survive a restart")
	}
	signer := security.NewPendingTokenSigner(priv, pub, cfg.JWTIssuer, cfg.JWTAudience)

	policy, err := policyengine.NewOPAEvaluator(ctx, cfg.AllowSelfRevoke)
	if err != nil {
		logger.Fatal("revocation policy", zap.Error(err))
	}

	var verifier captcha.Verifier = captcha.AllowAll{}
	if cfg.TurnstileSecretKey != "" {
		verifier = captcha.NewTurnstileClient(cfg.TurnstileSecretKey, cfg.TurnstileVerifyURL)
	} else {
		logger.Warn("TURNSTILE_SECRET_KEY not set; registration bot verification disabled")
	}

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuthEventsTopic, logger)
	if err != nil {
		logger.Fatal("kafka producer", zap.Error(err))
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		defer func() { _ = kafkaProducer.Close() }()
		logger.Info("streaming auth events to kafka", zap.String("topic", cfg.AuthEventsTopic))
	}
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), middleware.ClientIPFromContext, telemetry.Fanout(emitters...), logger)

	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
		limiter = ratelimit.New(ratelimit.NewRedisCounter(rdb), "login", cfg.LoginRateLimit, cfg.LoginRateWindow(), cfg.LoginRateBlock())
	} else {
		logger.Warn("REDIS_ADDR not set; login rate limiting disabled")
	}

	authService := identityservice.NewAuthService(
		users,
		sessionservice.NewStore(sessions, users, cfg.SessionTTL()),
		intents,
		security.NewHasher(cfg.BcryptCost),
		mfa.NewTOTPManager(cfg.TOTPIssuer),
		mfa.NewRecoveryCodeManager(recoveryCodes, cfg.RecoveryCodeCount),
		signer,
		identityservice.Options{
			PendingTTL: cfg.PendingTTL(),
			Captcha:    verifier,
			Policy:     policy,
			Audit:      auditLogger,
			Logger:     logger,
		},
	)

	trustedProxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxiesList())
	if err != nil {
		logger.Fatal("TRUSTED_PROXIES", zap.Error(err))
	}

	checker := healthhandler.NewChecker(conn, policy)
	httpServer := server.NewHTTPServer(cfg.HTTPAddr, server.NewHandler(server.Deps{
		Auth:           authService,
		Cookies:        httpx.NewCookies(cfg.SecureCookies()),
		TrustedProxies: trustedProxies,
		LoginLimiter:   limiter,
		Health:         checker,
		Logger:         logger,
	}))

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http serve", zap.Error(err))
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			logger.Fatal("grpc listen", zap.Error(err))
		}
		grpcServer = healthhandler.NewGRPCServer(checker)
		go func() {
			logger.Info("gRPC health server listening", zap.String("addr", cfg.GRPCHealthAddr))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc serve", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Error("otel shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}
