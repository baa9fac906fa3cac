package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/researchmate-backend/internal/assets"
	"github.com/yungbote/researchmate-backend/internal/chatstream"
	"github.com/yungbote/researchmate-backend/internal/db"
	httpx "github.com/yungbote/researchmate-backend/internal/http"
	httpH "github.com/yungbote/researchmate-backend/internal/http/handlers"
	httpMW "github.com/yungbote/researchmate-backend/internal/http/middleware"
	"github.com/yungbote/researchmate-backend/internal/platform/envutil"
	"github.com/yungbote/researchmate-backend/internal/platform/freepik"
	"github.com/yungbote/researchmate-backend/internal/platform/gcp"
	"github.com/yungbote/researchmate-backend/internal/platform/gemini"
	"github.com/yungbote/researchmate-backend/internal/platform/logger"
	"github.com/yungbote/researchmate-backend/internal/platform/pinecone"
	"github.com/yungbote/researchmate-backend/internal/repos"
	"github.com/yungbote/researchmate-backend/internal/search"
)

func main() {
	// Logger
	logMode := envutil.Str("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	chatRepo := repos.NewChatRepo(thePG, log)
	messageRepo := repos.NewChatMessageRepo(thePG, log)
	artifactRepo := repos.NewChatArtifactRepo(thePG, log)
	documentRepo := repos.NewDocumentRepo(thePG, log)

	// Model provider
	geminiClient, err := gemini.NewClient(ctx, log)
	if err != nil {
		log.Fatal("Gemini init failed", "error", err)
	}
	chatModel := envutil.Str("GEMINI_CHAT_MODEL", gemini.DefaultChatModel)
	liteModel := envutil.Str("GEMINI_LITE_MODEL", gemini.DefaultLiteModel)

	// Image provider
	freepikClient, err := freepik.New(log, freepik.Config{
		APIKey:  os.Getenv("FREEPIK_API_KEY"),
		Timeout: time.Duration(envutil.Int("FREEPIK_TIMEOUT_SECONDS", 90)) * time.Second,
	})
	if err != nil {
		log.Fatal("Freepik init failed", "error", err)
	}

	// Asset storage
	bucketService, err := gcp.NewBucketService(ctx, log)
	if err != nil {
		log.Fatal("GCS init failed", "error", err)
	}
	assetStore, err := assets.NewStore(log, bucketService)
	if err != nil {
		log.Fatal("Asset store init failed", "error", err)
	}

	// Vector search
	pineconeClient, err := pinecone.New(log, pinecone.Config{
		APIKey: os.Getenv("PINECONE_API_KEY"),
	})
	if err != nil {
		log.Fatal("Pinecone init failed", "error", err)
	}
	vectorStore, err := pinecone.NewVectorStore(log, pineconeClient)
	if err != nil {
		log.Fatal("Vector store init failed", "error", err)
	}
	searchGateway, err := search.NewGateway(log, geminiClient, vectorStore)
	if err != nil {
		log.Fatal("Search gateway init failed", "error", err)
	}

	// Chat services
	toolExecutor := chatstream.NewExecutor(log, documentRepo, artifactRepo, freepikClient, assetStore, searchGateway, geminiClient, liteModel)
	persister := chatstream.NewPersister(log, chatRepo, messageRepo, artifactRepo)
	orchestrator := chatstream.NewOrchestrator(log, geminiClient, toolExecutor, persister, chatRepo, messageRepo, artifactRepo, chatModel)
	titleService := chatstream.NewTitleService(log, geminiClient, liteModel)

	// HTTP
	authMW, err := httpMW.NewAuthMiddleware(log)
	if err != nil {
		log.Fatal("Auth middleware init failed", "error", err)
	}
	server := httpx.NewServer(httpx.RouterConfig{
		AuthMiddleware:    authMW,
		ChatStreamHandler: httpH.NewChatStreamHandler(orchestrator),
		ChatTitleHandler:  httpH.NewChatTitleHandler(titleService),
		ChatsHandler:      httpH.NewChatsHandler(log, chatRepo, messageRepo, artifactRepo),
		HealthHandler:     httpH.NewHealthHandler(),
	})

	port := envutil.Str("PORT", "8080")
	log.Info("Starting server...", "port", port)
	if err := server.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
