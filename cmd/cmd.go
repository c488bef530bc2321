package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shakti-alert-backend/internal/config"
	"shakti-alert-backend/internal/handlers"
	"shakti-alert-backend/internal/models"
	"shakti-alert-backend/internal/repository"
	"shakti-alert-backend/internal/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/token"
)

func Run() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Open storage
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open storage")
	}
	defer store.Close()
	log.Info().Str("driver", cfg.Storage.Driver).Msg("Storage ready")

	// Initialize repositories
	userRepo := repository.NewUserRepository(store)
	sessionRepo := repository.NewSessionRepository(store)
	deviceRepo := repository.NewDeviceTokenRepository(store)
	alertRepo := repository.NewAlertRepository(store)
	responseRepo := repository.NewResponseRepository(store)

	// Initialize services
	identity := services.NewIdentityService(userRepo, sessionRepo, deviceRepo)
	tokens := services.NewTokenService(cfg.JWT.Secret, cfg.JWT.TTL)
	alerts := services.NewAlertService(alertRepo, responseRepo, identity, fixedLocator(cfg.Alerts.Location))
	defer alerts.Close()

	if cfg.Alerts.SeedSampleUsers {
		if _, err := identity.SeedSampleUsers(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to seed sample users")
		}
	}
	if err := identity.RestoreSession(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to restore session")
	}

	// Subscribers
	wsHub := services.NewWSHub(alerts)
	wsHub.Attach(alerts)
	defer wsHub.Close()

	if cfg.APNs.Enabled {
		client, err := newAPNsClient(cfg.APNs)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs client")
		}
		notifier := services.NewPushNotifier(client, identity, cfg.APNs.Topic)
		notifier.Attach(alerts)
		defer notifier.Detach()
		log.Info().Bool("production", cfg.APNs.Production).Msg("APNs push enabled")
	}

	if cfg.MQTT.Enabled {
		client, err := newMQTTClient(cfg.MQTT)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
		}
		defer client.Disconnect(250)

		bridge := services.NewMQTTBridge(client, alerts, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS)
		if err := bridge.Start(alerts); err != nil {
			log.Fatal().Err(err).Msg("Failed to start MQTT bridge")
		}
		defer bridge.Stop()
	}

	if cfg.Archive.Enabled {
		s3Client, err := services.NewS3Client(ctx,
			cfg.Archive.Region,
			cfg.Archive.Endpoint,
			cfg.Archive.AccessKey,
			cfg.Archive.SecretKey,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 client")
		}
		alerts.SetArchiver(services.NewS3Archiver(s3Client, cfg.Archive.Bucket, cfg.Archive.Prefix))
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Alert archive enabled")
	}

	// Housekeeping
	go services.RunPruner(ctx, alerts, cfg.Alerts.PruneInterval, cfg.Alerts.MaxAge)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handlers.NewRouter(identity, tokens, alerts, wsHub),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openStore connects the configured key-value backend
func openStore(ctx context.Context, cfg config.StorageConfig) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return repository.NewRedisStore(client, cfg.Redis.Prefix), nil

	case config.DriverPostgres:
		db, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store := repository.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil

	default:
		return repository.NewMemoryStore(), nil
	}
}

func fixedLocator(cfg config.LocationConfig) services.FixedLocator {
	loc := models.Location{
		Latitude:  cfg.Latitude,
		Longitude: cfg.Longitude,
	}
	if cfg.Address != "" {
		address := cfg.Address
		loc.Address = &address
	}
	return services.FixedLocator{Location: loc}
}

func newAPNsClient(cfg config.APNsConfig) (*apns2.Client, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		return client.Production(), nil
	}
	return client.Development(), nil
}

func newMQTTClient(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	if t := client.Connect(); t.Wait() && t.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", t.Error())
	}

	log.Info().Str("broker", cfg.Broker).Msg("MQTT connection established")
	return client, nil
}

// setupLogger configures zerolog logger
func setupLogger(level string, pretty bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
