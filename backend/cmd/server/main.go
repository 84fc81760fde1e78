package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"faunagraph/backend/internal/graph"
	"faunagraph/backend/internal/ingest"
	"faunagraph/backend/internal/lexicon"
	"faunagraph/backend/internal/nlp"
	"faunagraph/backend/internal/query"
	"faunagraph/backend/pkg/config"
	apperrors "faunagraph/backend/pkg/errors"
	"faunagraph/backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	// Initialize graph store
	var store graph.Store
	switch cfg.StoreKind {
	case "memory":
		log.Warn("Using in-memory graph store; data will not survive restarts")
		store = graph.NewMemoryStore()
	default:
		driver, err := neo4j.NewDriverWithContext(
			cfg.Neo4jURI,
			neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
		)
		if err != nil {
			log.Fatal("Failed to create Neo4j driver", zap.Error(err))
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
		}
		neoStore := graph.NewNeo4jStore(driver)
		if err := neoStore.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to ensure graph schema", zap.Error(err))
		}
		store = neoStore
	}
	defer store.Close(context.Background())

	// Initialize dependencies
	parser := nlp.NewOpenAIParser(cfg.ParserURL, cfg.ParserAPIKey, cfg.ParserModelID,
		cfg.ParserTimeout, cfg.ConfidenceThreshold)
	lex := lexicon.New()
	ingestEngine := ingest.NewEngine(store, parser, lex)
	queryEngine := query.NewEngine(store, parser, lex)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		// Submit a fact sentence
		api.POST("/facts", func(c *gin.Context) {
			var req struct {
				Sentence string `json:"sentence" binding:"required"`
			}

			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			fact, err := ingestEngine.Ingest(c.Request.Context(), req.Sentence)
			if err != nil {
				respondError(c, log, err)
				return
			}

			c.JSON(http.StatusOK, gin.H{"fact_id": fact.ID})
		})

		// Fetch a fact by id
		api.GET("/facts/:id", func(c *gin.Context) {
			fact, err := ingestEngine.GetFact(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, log, err)
				return
			}

			c.JSON(http.StatusOK, gin.H{
				"fact_id":    fact.ID,
				"text":       fact.Text,
				"created_at": fact.CreatedAt,
			})
		})

		// Delete a fact and the relationships it created
		api.DELETE("/facts/:id", func(c *gin.Context) {
			if err := ingestEngine.DeleteFact(c.Request.Context(), c.Param("id")); err != nil {
				respondError(c, log, err)
				return
			}

			c.JSON(http.StatusOK, gin.H{"status": "deleted"})
		})

		// Answer a question sentence
		api.GET("/answer", func(c *gin.Context) {
			question := c.Query("q")
			if question == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
				return
			}

			answer, err := queryEngine.Answer(c.Request.Context(), question)
			if err != nil {
				respondError(c, log, err)
				return
			}

			c.JSON(http.StatusOK, gin.H{"answer": answer.Value()})
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port), zap.String("store", cfg.StoreKind))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// respondError maps engine errors to HTTP status codes.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case apperrors.IsErrorType(err, apperrors.ErrorTypeInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.IsErrorType(err, apperrors.ErrorTypeConflict):
		body := gin.H{"error": err.Error()}
		var conflict *apperrors.ErrConflictingFact
		if stderrors.As(err, &conflict) {
			body["conflicting_fact_id"] = conflict.ConflictingFactID
		}
		c.JSON(http.StatusConflict, body)
	case apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperrors.IsErrorType(err, apperrors.ErrorTypeParser):
		log.Error("Language parser unavailable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "language parser unavailable"})
	default:
		log.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
