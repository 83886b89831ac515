package main

import (
	"fmt"
	"os"

	"github.com/calliopehq/persona-backend/internal/ai"
	"github.com/calliopehq/persona-backend/internal/cache"
	"github.com/calliopehq/persona-backend/internal/db"
	"github.com/calliopehq/persona-backend/internal/handlers"
	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/middleware"
	"github.com/calliopehq/persona-backend/internal/repos"
	"github.com/calliopehq/persona-backend/internal/server"
	"github.com/calliopehq/persona-backend/internal/services"
	"github.com/calliopehq/persona-backend/internal/utils"
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
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	mediaDir := utils.GetEnv("MEDIA_DIR", "./media", log)

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

	// Repos
	log.Info("Setting up Repos from main...")
	personaRepo := repos.NewPersonaRepo(thePG, log)
	sessionRepo := repos.NewChatSessionRepo(thePG, log)
	messageRepo := repos.NewChatMessageRepo(thePG, log)
	configRepo := repos.NewChatConfigRepo(thePG, log)
	versionRepo := repos.NewResourceVersionRepo(thePG, log)
	sourceRepo := repos.NewContextSourceRepo(thePG, log)
	insightRepo := repos.NewSessionInsightRepo(thePG, log)

	// Cache
	configCache, err := cache.NewRedisConfigCache(log)
	if err != nil {
		log.Warn("Redis unavailable, config resolution runs uncached", "error", err)
		configCache = nil
	}

	// Providers
	creds := ai.CredentialsFromEnv()
	selectProvider := func(name string) ai.Provider {
		return ai.Select(name, creds, log)
	}

	// Services
	log.Info("Setting up Services from main...")
	configService := services.NewChatConfigService(thePG, log, configRepo, configCache)
	contextService := services.NewContextBuildService(log, sourceRepo)
	promptService := services.NewPromptBuildService(log, contextService)
	versionService := services.NewVersionService(thePG, log, versionRepo)
	personaService := services.NewPersonaService(thePG, log, personaRepo, versionService)
	imageService := services.NewPersonaImageService(thePG, log, personaRepo)
	chatService := services.NewChatService(
		thePG,
		log,
		sessionRepo,
		messageRepo,
		personaRepo,
		sourceRepo,
		insightRepo,
		configService,
		contextService,
		promptService,
		selectProvider,
	)

	// Handlers
	log.Info("Setting up handlers from main...")
	personaHandler := handlers.NewPersonaHandler(log, personaService, imageService)
	chatHandler := handlers.NewChatHandler(log, chatService)
	versionHandler := handlers.NewVersionHandler(log, versionService, personaService, sourceRepo)
	configHandler := handlers.NewChatConfigHandler(log, configService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:    authMiddleware,
		PersonaHandler:    personaHandler,
		ChatHandler:       chatHandler,
		VersionHandler:    versionHandler,
		ChatConfigHandler: configHandler,
		MediaDir:          mediaDir,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
