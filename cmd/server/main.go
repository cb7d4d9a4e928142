package main

import (
	"net/http"

	"github.com/toolhub/toolhub/internal/api"
	"github.com/toolhub/toolhub/internal/config"
	"github.com/toolhub/toolhub/internal/db"
	"github.com/toolhub/toolhub/internal/embedder"
	"github.com/toolhub/toolhub/internal/llm"
	"github.com/toolhub/toolhub/internal/search"
	"github.com/toolhub/toolhub/internal/tools"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
	}
	defer database.Close()

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)
	orchestrator := tools.NewOrchestrator(registry, logger)

	books := llm.NewHTTPBooks(cfg.BooksBaseURL)
	client := llm.New(logger, books)
	searcher := search.New(database)

	emb, err := embedder.New(cfg.EmbedderBaseURL, "", cfg.EmbedderModel, logger)
	if err != nil {
		logger.Fatal("failed to initialize embedder", zap.Error(err))
	}

	handler := api.NewHandler(database, client, searcher, orchestrator, registry,
		emb, cfg.HistoryTokenBudget, logger)

	http.HandleFunc("/api/message", handler.HandleMessage)
	http.HandleFunc("/api/message/cancel", handler.CancelSession)
	http.HandleFunc("/api/conversations", handler.GetConversations)
	http.HandleFunc("/api/conversations/update", handler.UpdateConversation)
	http.HandleFunc("/api/conversations/delete", handler.DeleteConversation)
	http.HandleFunc("/api/messages", handler.GetMessages)
	http.HandleFunc("/api/messages/embedding", handler.UpsertEmbedding)
	http.HandleFunc("/api/search", handler.SearchMessages)
	http.HandleFunc("/api/search/semantic", handler.SemanticSearch)
	http.HandleFunc("/api/tools", handler.GetTools)

	// Serve static files
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	logger.Info("Starting server", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, nil); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
