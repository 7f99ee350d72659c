package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"llm-chat/internal/config"
	apihttp "llm-chat/internal/http"
	"llm-chat/internal/llm"
	"llm-chat/internal/repository"
	"llm-chat/internal/service"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	history, err := repository.NewRedisChatHistory(
		ctx,
		cfg.RedisAddr,
		cfg.RedisPassword,
		cfg.RedisDB,
		cfg.RedisMaxRetries,
		cfg.RedisRetryInterval,
		logger,
	)
	if err != nil {
		logger.Fatal("chat history store unavailable", zap.Error(err))
	}

	llmClient := llm.NewOllamaClient(cfg.OllamaHost, cfg.OllamaModel, cfg.OllamaTimeout, logger)
	chatSvc := service.NewChatService(logger, history, llmClient, cfg.OllamaModel, cfg.OllamaTemperature, cfg.OllamaMaxTokens)

	chatHandler := apihttp.NewChatHandler(logger, history, chatSvc)
	router := apihttp.NewRouter(logger, chatHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
