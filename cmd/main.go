package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/LaithMimi/blendarchatbot2/aws"
	"github.com/LaithMimi/blendarchatbot2/config"
	"github.com/LaithMimi/blendarchatbot2/firebase"
	"github.com/LaithMimi/blendarchatbot2/handlers"
	"github.com/LaithMimi/blendarchatbot2/meshulam"
	"github.com/LaithMimi/blendarchatbot2/metrics"
	"github.com/LaithMimi/blendarchatbot2/models"
	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
	usageredis "github.com/LaithMimi/blendarchatbot2/pkg/redis"
	"github.com/LaithMimi/blendarchatbot2/services"
)

func main() {
	envErr := godotenv.Load()
	logger.InitFromEnv()
	log := logger.GetLogger("main")
	if envErr != nil {
		log.Debug("No .env file loaded")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Error("Failed to load configuration", err)
		os.Exit(1)
	}

	plans, err := config.LoadPlanCatalog()
	if err != nil {
		log.Warn("Using default plan catalog: " + err.Error())
	}
	if err := models.TutorPrompt.LoadFromEnv(); err != nil {
		log.Warn("Using built-in tutor prompt: " + err.Error())
	}

	m := metrics.Registry(cfg.Metrics.Namespace)

	// Outbound calls to the model and the payment gateway share this pool
	http.DefaultTransport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	ctx := context.Background()

	dynamo, err := aws.NewDynamoClient(ctx, cfg.AWS)
	if err != nil {
		log.Error("Failed to create DynamoDB client", err)
		os.Exit(1)
	}
	store := aws.NewStore(dynamo, cfg.AWS.TablePrefix)
	if cfg.AWS.CreateTables {
		if err := store.EnsureTables(ctx); err != nil {
			log.Error("Failed to create DynamoDB tables", err)
			os.Exit(1)
		}
	} else if err := store.CheckIfAllTablesExist(ctx); err != nil {
		log.Warn("DynamoDB tables are not ready: " + err.Error())
	}

	app, err := firebase.NewApp(ctx, cfg.Firebase)
	if err != nil {
		log.Error("Failed to initialize Firebase", err)
		os.Exit(1)
	}

	var counter services.UsageCounter = store
	var redisClient *goredis.Client
	if cfg.Usage.Backend == config.UsageBackendRedis {
		redisClient, err = usageredis.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			log.Error("Failed to connect to Redis", err)
			os.Exit(1)
		}
		counter = usageredis.NewUsageCounter(redisClient, "")
	}

	ledger := services.NewUsageLedger(counter, cfg.Usage.MonthlyQuota, nil)
	subscriptions := services.NewSubscriptionState(store, store, nil)
	sessions := services.NewSessionStore(store, cfg.Chat.SessionPolicy, nil)

	var materials services.MaterialSource
	if app.Firestore != nil {
		materials = firebase.NewMaterials(app.Firestore)
	}

	tutor := services.NewTutor(services.TutorDeps{
		Subscriptions: subscriptions,
		Ledger:        ledger,
		Sessions:      sessions,
		Users:         store,
		Materials:     materials,
		Prompts:       services.NewPromptBuilder(nil, cfg.Chat.HistoryTurns),
		Model:         services.NewOpenAIClient(cfg.OpenAI, m),
		Metrics:       m,
	})

	billing := services.NewBilling(services.BillingDeps{
		Gateway:       meshulam.NewClient(cfg.Meshulam),
		Transactions:  store,
		Subscriptions: store,
		Users:         store,
		Directory:     firebase.NewDirectory(app.Auth),
		Plans:         plans,
		Metrics:       m,
	})

	resolver := services.NewIdentityResolver(app.Auth, cfg.Auth.AdminUIDs, cfg.Auth.AdminEmails)

	h := handlers.New(handlers.Options{
		Tutor:           tutor,
		Usage:           ledger,
		Subscriptions:   subscriptions,
		ChatLogs:        sessions,
		Billing:         billing,
		Store:           store,
		Metrics:         m,
		WebhookSecret:   cfg.Meshulam.WebhookSecret,
		StaticDir:       cfg.Server.StaticDir,
		Version:         cfg.Server.Version,
		ModelConfigured: cfg.ModelConfigured(),
	})

	gin.SetMode(cfg.Server.GinMode)
	router := handlers.NewRouter(h, resolver, cfg.Server)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	if !cfg.ModelConfigured() {
		log.Warn("OPENAI_API_KEY is not set; answers will use the fallback message")
	}
	log.InfoWithFields("Server starting", map[string]interface{}{
		"port":           cfg.Server.Port,
		"usage_backend":  cfg.Usage.Backend,
		"session_policy": cfg.Chat.SessionPolicy,
		"materials":      materials != nil,
		"version":        cfg.Server.Version,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown error", err)
		}
		billing.Wait()
		if err := app.Close(); err != nil {
			log.Error("Failed to close Firebase clients", err)
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Error("Failed to close Redis client", err)
			}
		}
		log.Info("Server shutdown complete")
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server failed to start", err)
		os.Exit(1)
	}
	<-done
}
