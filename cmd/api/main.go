package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"fpp-app-layer/graph"
	"fpp-app-layer/internal/application"
	"fpp-app-layer/internal/application/webhook_handlers"
	"fpp-app-layer/internal/config"
	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/infrastructure/fpp"
	"fpp-app-layer/internal/infrastructure/metrics"
	securitymiddleware "fpp-app-layer/internal/infrastructure/middleware"
	"fpp-app-layer/internal/infrastructure/pubsub"
	"fpp-app-layer/internal/infrastructure/repository"
	"fpp-app-layer/internal/logger"
	"fpp-app-layer/internal/ports"

	"github.com/alecthomas/kong"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	authPath     = "/auth"
	callbackPath = "/auth/callback"
	webhookPath  = "/webhooks"
)

var version = "dev"

// CLI is the full command line; the app settings are shared with every component through config.Config
type CLI struct {
	App config.Config `embed:""`

	Listen      string   `help:"HTTP listen address" default:":8080" env:"FPP_LISTEN"`
	Dev         bool     `help:"Human readable logs" env:"FPP_DEV"`
	Online      bool     `help:"Request online (per-user) access tokens for the app pages" env:"FPP_ONLINE_ACCESS"`
	CORSOrigins []string `help:"Allowed CORS origins" default:"*" env:"FPP_CORS_ORIGINS"`
	SwaggerFile string   `help:"OpenAPI document served at /swagger/doc.json" default:"./docs/swagger.json" type:"path" env:"FPP_SWAGGER_FILE"`

	Storage     string        `help:"Session storage backend" default:"memory" enum:"memory,mongo,redis,postgres,dynamodb" env:"FPP_SESSION_STORAGE"`
	MongoDB     MongoFlags    `embed:"" prefix:"mongo-"`
	Redis       RedisFlags    `embed:"" prefix:"redis-"`
	Postgres    PostgresFlags `embed:"" prefix:"postgres-"`
	DynamoTable string        `help:"DynamoDB table for sessions" default:"fpp_sessions" env:"FPP_DYNAMODB_TABLE"`

	Version kong.VersionFlag
}

type MongoFlags struct {
	URI      string `help:"MongoDB connection URI" default:"mongodb://localhost:27017" env:"MONGODB_URI"`
	Database string `help:"MongoDB database" default:"fpp_app" env:"MONGODB_DATABASE"`
}

type RedisFlags struct {
	URL string `help:"Redis connection URL" default:"redis://localhost:6379/0" env:"REDIS_URL"`
}

type PostgresFlags struct {
	ConnString  string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`
	AutoMigrate bool   `help:"Create the sessions table on startup" env:"FPP_POSTGRES_AUTO_MIGRATE"`
}

func main() {
	// .env is optional; kong reads the environment afterwards
	envErr := godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("fpp-app"),
		kong.Description("Fpp app backend: OAuth install flow, sessions and webhooks"),
		kong.Vars{"version": version},
	)

	log := logger.Setup(cli.Dev)
	if envErr != nil {
		log.Debug().Msg(".env file not found")
	}

	kctx.FatalIfErrorf(run(&cli, log))
}

func run(cli *CLI, log zerolog.Logger) error {
	if err := cli.App.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, closeStorage, err := openSessionStorage(ctx, cli, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	m := metrics.New(prometheus.DefaultRegisterer)
	cfg := &cli.App

	clients := fpp.NewClientPool(cfg, log, fpp.WithMetrics(m))
	oauth := application.NewOAuthService(cfg, storage, clients, log, application.WithOAuthMetrics(m))

	events := pubsub.NewWebhookPubSub(log)
	registry := application.NewWebhookRegistry(cfg, clients, log, m)
	registry.SetPublisher(events)
	registry.RegisterHandler(webhookPath, webhook_handlers.NewAppUninstalledHandler(log, oauth))
	registry.RegisterHandler(webhookPath, webhook_handlers.NewProductHandler(log))
	registry.RegisterHandler(webhookPath, webhook_handlers.NewOrderHandler(log))
	registry.RegisterHandler(webhookPath, webhook_handlers.NewCustomerHandler(log))

	r := newRouter(cli, routes{
		oauth:    oauth,
		registry: registry,
		clients:  clients,
		events:   events,
	}, log)

	srv := &http.Server{
		Addr:              cli.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cli.Listen).
			Str("host", cfg.HostName).
			Str("apiVersion", string(cfg.APIVersion)).
			Str("storage", cli.Storage).
			Strs("topics", registry.Topics()).
			Msg("Starting API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// routes are the services the HTTP surface is built on
type routes struct {
	oauth    *application.OAuthService
	registry *application.WebhookRegistry
	clients  ports.ClientProvider
	events   *pubsub.WebhookPubSub
}

func newRouter(cli *CLI, rt routes, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(securitymiddleware.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cli.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{domain.HeaderReauthorize, domain.HeaderReauthorizeURL},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get(authPath, beginAuthHandler(rt.oauth, cli.Online, log))
	r.Get(callbackPath, authCallbackHandler(rt.oauth, rt.registry, log))
	r.Post(webhookPath, func(w http.ResponseWriter, r *http.Request) {
		// Process always writes the response
		_ = rt.registry.Process(w, r)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, cli.SwaggerFile)
	})

	requireSession := securitymiddleware.RequireSession(rt.oauth, securitymiddleware.SessionOptions{
		IsOnline: cli.Online,
		AuthPath: authPath,
	}, log)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireSession)
		r.Get("/session", sessionHandler())
		r.Delete("/session", deleteSessionHandler(rt.oauth, cli.Online, log))
		r.Get("/shop", shopHandler(rt.clients, log))
	})

	// session, shop and the live webhook event subscription
	gql := graph.NewServer(graph.NewResolver(rt.clients, rt.events, log))
	r.With(requireSession).Handle("/query", gql)

	return r
}

func openSessionStorage(ctx context.Context, cli *CLI, log zerolog.Logger) (ports.SessionStorage, func(), error) {
	noop := func() {}

	switch cli.Storage {
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cli.MongoDB.URI))
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		storage := repository.NewMongoSessionStorage(client.Database(cli.MongoDB.Database))
		if err := storage.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to create session indexes")
		}
		log.Info().Str("database", cli.MongoDB.Database).Msg("Using MongoDB session storage")
		return storage, func() { client.Disconnect(context.Background()) }, nil

	case "redis":
		opts, err := redis.ParseURL(cli.Redis.URL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info().Str("addr", opts.Addr).Msg("Using Redis session storage")
		return repository.NewRedisSessionStorage(client), func() { client.Close() }, nil

	case "postgres":
		if cli.Postgres.ConnString == "" {
			return nil, noop, errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
		}
		pool, err := pgxpool.New(ctx, cli.Postgres.ConnString)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create connection pool: %w", err)
		}
		storage := repository.NewPostgresSessionStorage(pool)
		if cli.Postgres.AutoMigrate {
			if err := storage.Migrate(ctx); err != nil {
				pool.Close()
				return nil, noop, err
			}
			log.Info().Msg("Session table migration completed")
		}
		log.Info().Msg("Using PostgreSQL session storage")
		return storage, pool.Close, nil

	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to load AWS config: %w", err)
		}
		log.Info().Str("table", cli.DynamoTable).Msg("Using DynamoDB session storage")
		return repository.NewDynamoDBSessionStorage(dynamodb.NewFromConfig(awsCfg), cli.DynamoTable), noop, nil

	default:
		log.Warn().Msg("Using in-memory session storage, sessions are lost on restart")
		return repository.NewMemorySessionStorage(), noop, nil
	}
}

func beginAuthHandler(oauth *application.OAuthService, defaultOnline bool, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := r.URL.Query().Get("shop")
		if shop == "" {
			http.Error(w, "shop parameter is required", http.StatusBadRequest)
			return
		}

		online := defaultOnline
		if raw := r.URL.Query().Get("online"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				http.Error(w, "online must be a boolean", http.StatusBadRequest)
				return
			}
			online = parsed
		}

		authURL, err := oauth.BeginAuth(w, r, shop, callbackPath, online)
		if err != nil {
			log.Error().Err(err).Str("shop", shop).Msg("Failed to begin OAuth")
			http.Error(w, err.Error(), domain.HTTPStatus(err))
			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

func authCallbackHandler(oauth *application.OAuthService, registry *application.WebhookRegistry, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := application.AuthQueryFromValues(r.URL.Query())

		session, err := oauth.ValidateAuthCallback(w, r, query)
		if err != nil {
			log.Error().Err(err).Str("shop", query.Shop).Msg("Failed to complete OAuth")
			http.Error(w, "Failed to complete installation", domain.HTTPStatus(err))
			return
		}

		results, err := registry.RegisterAll(r.Context(), application.RegisterAllOptions{
			AccessToken: session.AccessToken,
			Shop:        session.Shop,
		})
		if err != nil {
			// installation succeeded; subscriptions are retried on the next install
			log.Error().Err(err).Str("shop", session.Shop).Msg("Failed to register webhooks")
		}
		for topic, result := range results {
			log.Debug().Str("shop", session.Shop).Str("topic", topic).Bool("success", result.Success).Msg("Webhook registration")
		}

		redirect := "/?" + url.Values{"shop": {session.Shop}, "host": {query.Host}}.Encode()
		http.Redirect(w, r, redirect, http.StatusFound)
	}
}

type sessionView struct {
	ID       string     `json:"id"`
	Shop     string     `json:"shop"`
	IsOnline bool       `json:"isOnline"`
	Scope    string     `json:"scope"`
	Expires  *time.Time `json:"expires,omitempty"`
	UserID   int64      `json:"userId,omitempty"`
}

func sessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := domain.SessionFromContext(r.Context())
		view := sessionView{
			ID:       session.ID,
			Shop:     session.Shop,
			IsOnline: session.IsOnline,
			Scope:    session.Scope,
			Expires:  session.Expires,
		}
		if session.OnlineAccessInfo != nil {
			view.UserID = session.OnlineAccessInfo.AssociatedUser.ID
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func deleteSessionHandler(oauth *application.OAuthService, online bool, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := oauth.DeleteCurrentSession(r, online)
		if err != nil {
			log.Error().Err(err).Msg("Failed to delete session")
			http.Error(w, err.Error(), domain.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
	}
}

const shopQuery = `{
  shop {
    name
    email
    myfunpinpinDomain
    plan {
      displayName
    }
  }
}`

func shopHandler(clients ports.ClientProvider, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := domain.SessionFromContext(r.Context())

		client, err := clients.GetGraphQLClient(session.Shop, session.AccessToken)
		if err != nil {
			http.Error(w, err.Error(), domain.HTTPStatus(err))
			return
		}

		resp, err := client.Query(r.Context(), shopQuery, nil)
		if err != nil {
			log.Error().Err(err).Str("shop", session.Shop).Msg("Failed to query shop")
			http.Error(w, "Failed to query shop", domain.HTTPStatus(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(resp.Raw)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
