package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"

	httpapi "github.com/libreone/libreone-server/internal/api/http"
	"github.com/libreone/libreone-server/internal/api/http/handler"
	"github.com/libreone/libreone-server/internal/api/http/middleware"
	"github.com/libreone/libreone-server/internal/api/http/router"
	"github.com/libreone/libreone-server/internal/cas"
	"github.com/libreone/libreone-server/internal/config"
	"github.com/libreone/libreone-server/internal/events"
	"github.com/libreone/libreone-server/internal/keys"
	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/mail"
	"github.com/libreone/libreone-server/internal/model"
	"github.com/libreone/libreone-server/internal/notify"
	"github.com/libreone/libreone-server/internal/repository/postgres"
	"github.com/libreone/libreone-server/internal/server"
	"github.com/libreone/libreone-server/internal/service"
	storage "github.com/libreone/libreone-server/internal/storage/minio"
	"github.com/libreone/libreone-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel, cfg.Production)

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	userRepo := postgres.NewUserRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	verificationRepo := postgres.NewEmailVerificationRepository(db)
	resetTokenRepo := postgres.NewResetTokenRepository(db)
	applicationRepo := postgres.NewApplicationRepository(db)
	grantRepo := postgres.NewUserApplicationRepository(db)
	licenseRepo := postgres.NewLicenseRepository(db)
	subscriberRepo := postgres.NewSubscriberRepository(db)
	loginEventRepo := postgres.NewLoginEventRepository(db)

	sessionTokens := token.NewSessionManager(cfg.JWT.Secret, cfg.Domain.Canonical)
	stateCipher := token.NewStateCipher(cfg.JWT.StateSecret)
	ssoMinter := token.NewSSOAssertionMinter(cfg.JWT.Secret, cfg.Domain.Canonical, stateCipher)

	casClient := cas.NewClient(cfg.CAS.Protocol, cfg.CAS.Domain, logger)
	callbackURL := cfg.Domain.Canonical + router.APIPrefix + "/auth/cas-callback"

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Fatal("failed to load aws config", "error", err)
	}
	keyProvider := keys.NewSSMProvider(ssm.NewFromConfig(awsCfg), cfg.CAS.BridgeKeyParam)

	minioClient, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatal("failed to create minio client", "error", err)
	}
	avatarStore, err := storage.NewAvatarStore(ctx, minioClient, cfg.Storage.Bucket)
	if err != nil {
		logger.Fatal("failed to initialize avatar storage", "error", err)
	}

	emitter := events.NewEmitter(subscriberRepo, cfg.Domain.Canonical, logger)
	mailer := mail.NewLogMailer(logger)

	var notifiers []notify.Notifier
	if cfg.Notify.ConductorURL != "" {
		notifiers = append(notifiers, notify.NewHTTPNotifier("conductor", cfg.Notify.ConductorURL, cfg.Notify.ConductorAPIKey, cfg.Domain.Canonical))
	}
	if cfg.Notify.ADAPTURL != "" {
		notifiers = append(notifiers, notify.NewHTTPNotifier("adapt", cfg.Notify.ADAPTURL, cfg.Notify.ADAPTAPIKey, cfg.Domain.Canonical))
	}

	sessionService := service.NewSessionService(sessionRepo, userRepo, logger)
	licenseService := service.NewLicenseService(licenseRepo, logger)
	authService := service.NewAuth(
		userRepo, verificationRepo, resetTokenRepo, applicationRepo, grantRepo,
		sessionService, sessionTokens, ssoMinter, emitter, notifiers, mailer,
		service.AuthConfig{
			CanonicalURL:            cfg.Domain.Canonical,
			RegistrationCompleteURL: cfg.Registration.CompleteURL,
			ResetPasswordURL:        cfg.Registration.ResetPasswordURL,
			VerifyEmailURL:          cfg.Registration.VerifyEmailURL,
			ADAPTDeepLinkURL:        cfg.Notify.ADAPTDeepLinkURL,
		},
		logger,
	)
	interruptEngine := service.NewInterruptEngine(
		userRepo, applicationRepo, grantRepo, licenseService, loginEventRepo,
		service.InterruptConfig{
			CallbackURL:          callbackURL,
			MainURL:              cfg.Domain.Main,
			RegistrationEntryURL: cfg.Registration.EntryURL,
			AccessRequestURL:     cfg.Licensing.AccessRequestURL,
			TrialURL:             cfg.Licensing.TrialURL,
			EnforceLicenses:      cfg.Licensing.Enforce,
		},
		logger,
	)
	bridgeService := service.NewBridge(userRepo, applicationRepo, grantRepo, keyProvider, cfg.Domain.Canonical, logger)
	idpService := service.NewExternalIdP(userRepo, emitter, cfg.Domain.Canonical, logger)
	profileService := service.NewProfile(userRepo, avatarStore, emitter, logger)

	jar := httpapi.NewJar(cfg.Domain.CookieDomain, cfg.Production)

	authHandler := handler.NewAuth(
		authService, sessionService, sessionTokens, interruptEngine, bridgeService,
		casClient, userRepo, jar, stateCipher,
		handler.AuthConfig{
			CallbackURL:          callbackURL,
			MainURL:              cfg.Domain.Main,
			RegistrationEntryURL: cfg.Registration.EntryURL,
		},
		logger,
	)
	profileHandler := handler.NewProfile(profileService, logger)
	idpHandler := handler.NewIdP(idpService, logger)

	authenticator := middleware.NewAuthenticator(sessionTokens, sessionService, router.LoginPath, router.LogoutPath, logger)
	metrics := middleware.NewMetrics(prometheus.DefaultRegisterer)

	mux := router.New(authHandler, profileHandler, idpHandler, authenticator, metrics, logger)
	httpServer := server.NewHTTPServer(mux, fmt.Sprintf(":%s", cfg.HTTP.Port))

	var sl model.SecurityLayer
	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		if err := s.Start(sl); err != nil {
			logger.Error("failed to start server", "error", err)
		}
	}(httpServer)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", httpServer.Address())
	}

	wg.Wait()
	emitter.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
