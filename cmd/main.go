package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pinpung/pinpung-ai/internal/clients/gcp"
	"github.com/pinpung/pinpung-ai/internal/clients/redis"
	"github.com/pinpung/pinpung-ai/internal/db"
	appHTTP "github.com/pinpung/pinpung-ai/internal/http"
	"github.com/pinpung/pinpung-ai/internal/http/handlers"
	"github.com/pinpung/pinpung-ai/internal/platform/logger"
	"github.com/pinpung/pinpung-ai/internal/platform/openai"
	"github.com/pinpung/pinpung-ai/internal/platform/qdrant"
	"github.com/pinpung/pinpung-ai/internal/repos"
	"github.com/pinpung/pinpung-ai/internal/services"
	"github.com/pinpung/pinpung-ai/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	dedupThreshold := utils.GetEnvAsFloat("TAG_DEDUP_THRESHOLD", 0.2, log)
	trainInterval := utils.GetEnvAsInt("TRAIN_INTERVAL_SECONDS", 300, log)
	trendingFloor := utils.GetEnvAsInt("TRENDING_COUNT_FLOOR", 1, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Vector store
	qdrantCfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		log.Error("Qdrant config invalid", "error", err)
		os.Exit(1)
	}
	vectorStore, err := qdrant.NewVectorStore(log, qdrantCfg)
	if err != nil {
		log.Error("Could not init vector store", "error", err)
		os.Exit(1)
	}

	// Clients
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	var bucketService gcp.BucketService
	if os.Getenv("REVIEW_GCS_BUCKET_NAME") != "" {
		bucketService, err = gcp.NewBucketService(log)
		if err != nil {
			log.Warn("Could not init BucketService, photo reviews disabled", "error", err)
			bucketService = nil
		}
	}
	var modelBus redis.ModelBus
	if os.Getenv("REDIS_ADDR") != "" {
		modelBus, err = redis.NewModelBus(log)
		if err != nil {
			log.Warn("Could not init model bus, staleness stays in-process", "error", err)
			modelBus = nil
		}
	}

	// Repos
	log.Info("Setting up repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	placeTagRepo := repos.NewPlaceTagRepo(thePG, log)
	userPlaceTagRepo := repos.NewUserPlaceTagRepo(thePG, log)
	placeVisitRepo := repos.NewPlaceVisitRepo(thePG, log)

	// Services
	log.Info("Setting up services from main...")
	extractor := services.NewTagExtractor(log, openaiClient)
	canonicalizer := services.NewTagCanonicalizer(log, openaiClient, vectorStore, dedupThreshold)
	aggregator := services.NewAssociationAggregator(thePG, log, placeTagRepo, userPlaceTagRepo, placeVisitRepo, userRepo)
	builder := services.NewFeatureMatrixBuilder(thePG, log, placeTagRepo, userPlaceTagRepo, placeVisitRepo, userRepo, canonicalizer)

	buildOpts := services.BuildOptions{
		TrendingCountFloor:         trendingFloor,
		IncludeTrendingPseudoUsers: true,
	}
	trainerService := services.NewTrainer(log, services.TrainerConfig{
		Interval:     time.Duration(trainInterval) * time.Second,
		BuildOptions: buildOpts,
	}, builder, userPlaceTagRepo, modelBus)
	if err := trainerService.Start(context.Background()); err != nil {
		log.Error("Could not start trainer", "error", err)
		os.Exit(1)
	}

	taggingService := services.NewTaggingService(log, extractor, canonicalizer, aggregator, trainerService, bucketService)
	recommendationService := services.NewRecommendationService(log, trainerService, builder, buildOpts)

	// Handlers
	log.Info("Setting up handlers from main...")
	taggingHandler := handlers.NewTaggingHandler(taggingService)
	recommendationHandler := handlers.NewRecommendationHandler(recommendationService)
	healthHandler := handlers.NewHealthHandler()

	// Router
	log.Info("Setting up router from main...")
	server := appHTTP.NewServer(appHTTP.RouterConfig{
		Log:                   log,
		TaggingHandler:        taggingHandler,
		RecommendationHandler: recommendationHandler,
		HealthHandler:         healthHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := server.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
