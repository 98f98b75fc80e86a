package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/settlement/internal/auditlog"
	"github.com/MarkoPoloResearchLab/settlement/internal/catalog"
	"github.com/MarkoPoloResearchLab/settlement/internal/events"
	"github.com/MarkoPoloResearchLab/settlement/internal/gateway"
	"github.com/MarkoPoloResearchLab/settlement/internal/httpapi"
	"github.com/MarkoPoloResearchLab/settlement/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/settlement/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/settlement/internal/store/redisstore"
	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	envPrefix = "SETTLEMENTD"

	flagDatabaseURL       = "database-url"
	flagListenAddr        = "listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagSessionSigningKey = "session-signing-key"
	flagSessionIssuer     = "session-issuer"
	flagSessionCookie     = "session-cookie"
	flagAdminUserIDs      = "admin-user-ids"
	flagGatewayURL        = "gateway-url"
	flagGatewayKey        = "gateway-api-key"
	flagGatewaySecret     = "gateway-api-secret"
	flagGatewayTimeout    = "gateway-timeout"
	flagSequencer         = "sequencer"
	flagRedisAddr         = "redis-addr"
	flagAMQPURL           = "amqp-url"
	flagAMQPQueue         = "amqp-queue"
	flagKafkaBrokers      = "kafka-brokers"
	flagKafkaTopic        = "kafka-topic"
	flagCatalog           = "catalog"

	defaultDatabaseURL = "sqlite:///tmp/settlement.db"
	defaultListenAddr  = ":8080"
	defaultAMQPQueue   = "settlement.events"
	defaultKafkaTopic  = "settlement.events"

	sequencerStore    = "store"
	sequencerPostgres = "postgres"
	sequencerRedis    = "redis"
)

type runtimeConfig struct {
	DatabaseURL       string
	ListenAddr        string
	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	AdminUserIDs      []string
	GatewayURL        string
	GatewayAPIKey     string
	GatewayAPISecret  string
	GatewayTimeout    time.Duration
	Sequencer         string
	RedisAddr         string
	AMQPURL           string
	AMQPQueue         string
	KafkaBrokers      []string
	KafkaTopic        string
	CatalogPath       string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "settlementd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "settlementd",
		Short:         "Booking settlement HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, defaultDatabaseURL, "Database URL (postgres://, mysql://, sqlite:// or a sqlite path)")
	flags.String(flagCatalog, "", "Catalog file imported before serving")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "Comma-separated CORS origins")
	cmd.Flags().String(flagSessionSigningKey, "", "Session JWT signing key")
	cmd.Flags().String(flagSessionIssuer, "", "Session JWT issuer")
	cmd.Flags().String(flagSessionCookie, "", "Session cookie name")
	cmd.Flags().String(flagAdminUserIDs, "", "Comma-separated user ids allowed to manage seat maps")
	cmd.Flags().String(flagGatewayURL, "", "Payment gateway base URL")
	cmd.Flags().String(flagGatewayKey, "", "Payment gateway API key")
	cmd.Flags().String(flagGatewaySecret, "", "Payment gateway API secret")
	cmd.Flags().Duration(flagGatewayTimeout, 10*time.Second, "Timeout for each gateway call")
	cmd.Flags().String(flagSequencer, sequencerStore, "Reservation counter backend: store, postgres or redis")
	cmd.Flags().String(flagRedisAddr, "localhost:6379", "Redis address for the redis sequencer")
	cmd.Flags().String(flagAMQPURL, "", "RabbitMQ URL for settlement events")
	cmd.Flags().String(flagAMQPQueue, defaultAMQPQueue, "RabbitMQ queue for settlement events")
	cmd.Flags().String(flagKafkaBrokers, "", "Comma-separated Kafka brokers for settlement events")
	cmd.Flags().String(flagKafkaTopic, defaultKafkaTopic, "Kafka topic for settlement events")

	cmd.AddCommand(newImportCatalogCommand(cfg))
	return cmd
}

func newImportCatalogCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "import-catalog",
		Short: "Upsert rooms, courier services and flights from the catalog file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.CatalogPath == "" {
				return fmt.Errorf("--%s is required", flagCatalog)
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			gormDB, cleanup, _, err := openDatabase(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = cleanup() }()
			if err := prepareSchema(gormDB); err != nil {
				return err
			}
			loaded, err := importCatalog(cmd.Context(), cfg.CatalogPath, gormstore.New(gormDB))
			if err != nil {
				return err
			}
			logger.Info("catalog imported",
				zap.Int("resources", len(loaded.Resources)),
				zap.Int("flights", len(loaded.Flights)))
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	config := viper.New()
	config.SetEnvPrefix(envPrefix)
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()
	if err := config.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg.DatabaseURL = config.GetString(flagDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.CatalogPath = config.GetString(flagCatalog)
	cfg.ListenAddr = config.GetString(flagListenAddr)
	cfg.AllowedOrigins = httpapi.ParseAllowedOrigins(config.GetString(flagAllowedOrigins))
	cfg.SessionSigningKey = config.GetString(flagSessionSigningKey)
	cfg.SessionIssuer = config.GetString(flagSessionIssuer)
	cfg.SessionCookieName = config.GetString(flagSessionCookie)
	cfg.AdminUserIDs = httpapi.ParseAllowedOrigins(config.GetString(flagAdminUserIDs))
	cfg.GatewayURL = config.GetString(flagGatewayURL)
	cfg.GatewayAPIKey = config.GetString(flagGatewayKey)
	cfg.GatewayAPISecret = config.GetString(flagGatewaySecret)
	cfg.GatewayTimeout = config.GetDuration(flagGatewayTimeout)
	cfg.Sequencer = strings.ToLower(config.GetString(flagSequencer))
	cfg.RedisAddr = config.GetString(flagRedisAddr)
	cfg.AMQPURL = config.GetString(flagAMQPURL)
	cfg.AMQPQueue = config.GetString(flagAMQPQueue)
	cfg.KafkaBrokers = httpapi.ParseAllowedOrigins(config.GetString(flagKafkaBrokers))
	cfg.KafkaTopic = config.GetString(flagKafkaTopic)

	switch cfg.Sequencer {
	case "", sequencerStore, sequencerPostgres, sequencerRedis:
	default:
		return fmt.Errorf("unknown sequencer %q", cfg.Sequencer)
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()
	if err := prepareSchema(gormDB); err != nil {
		return err
	}
	store := gormstore.New(gormDB)

	options := []settlement.ServiceOption{
		settlement.WithGatewayTimeout(cfg.GatewayTimeout),
		settlement.WithOperationLogger(auditlog.New(logger)),
	}
	if cfg.CatalogPath != "" {
		loaded, err := importCatalog(ctx, cfg.CatalogPath, store)
		if err != nil {
			return err
		}
		options = append(options, settlement.WithAirportCodes(loaded.AirportCodes()))
	}

	sequencer, closeSequencer, err := openSequencer(ctx, cfg, driver)
	if err != nil {
		return err
	}
	defer closeSequencer()
	if sequencer != nil {
		options = append(options, settlement.WithSequencer(sequencer))
	}

	sink, closePublishers, err := openEventSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closePublishers()
	if sink != nil {
		options = append(options, settlement.WithOperationLogger(sink))
	}

	gatewayClient, err := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.GatewayURL,
		APIKey:    cfg.GatewayAPIKey,
		APISecret: cfg.GatewayAPISecret,
		Timeout:   cfg.GatewayTimeout,
	}, gateway.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("gateway client: %w", err)
	}

	service, err := settlement.NewService(store, gatewayClient, time.Now, options...)
	if err != nil {
		return fmt.Errorf("settlement service init: %w", err)
	}

	return httpapi.Run(ctx, httpapi.Config{
		ListenAddr:        cfg.ListenAddr,
		AllowedOrigins:    cfg.AllowedOrigins,
		SessionSigningKey: cfg.SessionSigningKey,
		SessionIssuer:     cfg.SessionIssuer,
		SessionCookieName: cfg.SessionCookieName,
		AdminUserIDs:      cfg.AdminUserIDs,
	}, service, logger)
}

func importCatalog(ctx context.Context, path string, writer catalog.Writer) (catalog.Catalog, error) {
	loaded, err := catalog.Load(path)
	if err != nil {
		return catalog.Catalog{}, err
	}
	if err := loaded.Import(ctx, writer); err != nil {
		return catalog.Catalog{}, err
	}
	return loaded, nil
}

// openSequencer returns nil when reservation numbers come from the store's
// own transactions.
func openSequencer(ctx context.Context, cfg *runtimeConfig, driver string) (settlement.Sequencer, func(), error) {
	switch cfg.Sequencer {
	case sequencerPostgres:
		if driver != driverPostgres {
			return nil, func() {}, fmt.Errorf("postgres sequencer needs a postgres database, got %s", driver)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, func() {}, fmt.Errorf("pgx pool: %w", err)
		}
		return pgstore.New(pool), pool.Close, nil
	case sequencerRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, func() {}, fmt.Errorf("redis ping: %w", err)
		}
		return redisstore.New(client), func() { _ = client.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

func openEventSink(cfg *runtimeConfig, logger *zap.Logger) (*events.Sink, func(), error) {
	var (
		publishers []events.Publisher
		closers    []func() error
	)
	closeAll := func() {
		for _, closer := range closers {
			_ = closer()
		}
	}
	if cfg.AMQPURL != "" {
		publisher, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, closeAll, err
		}
		publishers = append(publishers, publisher)
		closers = append(closers, publisher.Close)
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		publishers = append(publishers, publisher)
		closers = append(closers, publisher.Close)
	}
	if len(publishers) == 0 {
		return nil, closeAll, nil
	}
	sink, err := events.NewSink(logger, publishers)
	if err != nil {
		closeAll()
		return nil, func() {}, err
	}
	logger.Info("settlement events enabled", zap.Int("publishers", len(publishers)))
	return sink, closeAll, nil
}
