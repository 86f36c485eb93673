package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mindhaven/peerlink/config"
	"github.com/mindhaven/peerlink/internal/chat"
	"github.com/mindhaven/peerlink/internal/handlers"
	"github.com/mindhaven/peerlink/internal/ledger"
	"github.com/mindhaven/peerlink/internal/middleware"
	"github.com/mindhaven/peerlink/internal/registry"
	"github.com/mindhaven/peerlink/internal/relay"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg)

	// Chat store
	db, err := gorm.Open(sqlite.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatal().Err(err).Str("dsn", cfg.DatabaseDSN).Msg("failed to open database")
	}
	chatStore := chat.NewGormStore(db)
	if err := chatStore.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Meeting store: Redis when configured, in-memory otherwise.
	var meetingStore ledger.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to Redis")
		}
		cancel()
		defer client.Close()
		meetingStore = ledger.NewRedisStore(client)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using Redis meeting store")
	} else {
		meetingStore = ledger.NewMemoryStore()
		log.Info().Msg("using in-memory meeting store")
	}

	// Core components, explicitly owned and injected.
	reg := registry.New(log)
	rel := relay.New(reg, log)
	chatSvc := chat.NewService(chatStore, chatStore, rel, log)
	meetings := ledger.New(meetingStore, cfg.MeetingTTL, cfg.MeetingSweepInterval, log)

	meetings.Start(context.Background())
	defer meetings.Stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	auth := middleware.JWTAuth(cfg.JWTSecret)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret))

		apiGroup.POST("/meetings", auth, handlers.CreateMeeting(meetings))
		apiGroup.GET("/meetings/:meetingId", handlers.ValidateMeeting(meetings))

		chatGroup := apiGroup.Group("/chat", auth)
		{
			chatGroup.POST("/conversations", handlers.StartConversation(chatSvc))
			chatGroup.GET("/conversations", handlers.ListConversations(chatSvc))
			chatGroup.GET("/conversations/:conversationId/messages", handlers.ListMessages(chatSvc))
			chatGroup.POST("/conversations/:conversationId/messages", handlers.SendMessage(chatSvc))
			chatGroup.PATCH("/conversations/:conversationId/read", handlers.MarkRead(chatSvc))
		}
	}

	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("", handlers.Socket(rel, reg, cfg.JWTSecret, log))
	}

	log.Info().Str("port", cfg.Port).Str("environment", cfg.Environment).Msg("starting peerlink server")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return zlog.Output(output).
		With().
		Timestamp().
		Str("service", "peerlink").
		Str("environment", cfg.Environment).
		Logger().
		Level(level)
}
