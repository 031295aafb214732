package main

import (
	"bokquiz/config"
	"bokquiz/handlers"
	"bokquiz/logger"
	"bokquiz/middleware"
	"bokquiz/models"
	"bokquiz/routes"
	"bokquiz/services"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	err = db.AutoMigrate(
		&models.Game{},
		&models.Player{},
		&models.Question{},
		&models.Submission{},
		&models.RoundResult{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient := config.InitRedis(cfg)

	catalogService := services.NewCatalogService(db, log)
	if err := catalogService.SeedFromFile(cfg.QuestionFile); err != nil {
		log.Fatal().Err(err).Msg("failed to seed question catalog")
	}
	catalogService.CheckRoundShape()

	hub := services.NewHub(redisClient, log)
	go hub.Run()

	gameService := services.NewGameService(db, redisClient, hub, log)
	gameHandler := handlers.NewGameHandler(gameService, log)

	router := gin.Default()
	router.Use(middleware.CORS())
	routes.SetupRoutes(router, gameHandler, hub, gameService, log)

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := router.Run(cfg.BindAddress + ":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
