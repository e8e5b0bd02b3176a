package main

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"guess-duel-backend/internal/config"
	"guess-duel-backend/internal/handlers"
	"guess-duel-backend/internal/middleware"
	"guess-duel-backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisService.Close()

	jwtService := services.NewJWTService(cfg)

	settlement := services.NewSettlementEngine(redisService)
	gameEngine := services.NewGameEngine(redisService, settlement, cfg.GuessRange)
	registry := services.NewRoomRegistry(redisService, redisService, gameEngine, cfg.BetLimits)
	gameEngine.SetRoomCompleter(registry)

	wsHandler := handlers.NewWebSocketHandler(registry, gameEngine, redisService)
	gameEngine.SetBroadcaster(wsHandler)

	roomHandler := handlers.NewRoomHandler(registry)
	walletHandler := handlers.NewWalletHandler(redisService)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(jwtService))
	{
		protected.GET("/ws/rooms/:room_id", wsHandler.HandleWebSocket)

		rooms := protected.Group("/rooms")
		{
			roomLimit := middleware.RateLimitMiddleware(redisService, "rooms",
				services.DefaultRateLimitRooms, time.Minute)

			rooms.GET("", roomHandler.ListRooms)
			rooms.POST("", roomLimit, roomHandler.CreateRoom)
			rooms.GET("/mine", roomHandler.MyRooms)
			rooms.GET("/:room_id", roomHandler.GetRoom)
			rooms.POST("/:room_id/join", roomLimit, roomHandler.JoinRoom)
			rooms.POST("/:room_id/cancel", roomHandler.CancelRoom)
		}

		wallet := protected.Group("/wallet")
		{
			wallet.GET("/balance", walletHandler.GetBalance)
			wallet.GET("/transactions", walletHandler.GetTransactions)
		}

		protected.GET("/settings/bets", roomHandler.BetSettings)
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
