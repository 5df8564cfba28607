// api/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"pagepulse/api/database"
	"pagepulse/api/handlers"
	"pagepulse/api/hub"
	"pagepulse/api/middleware"
	"pagepulse/api/store"
)

func main() {
	// Load .env file at the very start
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Initialize ClickHouse (the event store) ---
	// This one is mandatory: serving intake without a reachable store would
	// silently drop every event.
	chClient, err := database.NewClickHouseDB()
	if err != nil {
		log.Fatalf("Failed to initialize ClickHouse event store: %v", err)
	}
	defer chClient.Close()

	// --- Initialize PostgreSQL (dashboard accounts) ---
	dbClient, err := database.NewPostgresDB()
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
	}
	defer dbClient.Close()

	// --- Initialize Stores ---
	eventStore := store.NewEventStore(chClient)
	userStore := store.NewUserStore(dbClient.DB)

	// --- Live fan-out hub ---
	liveHub := hub.NewHub()

	// --- Initialize Handlers ---
	trackHandlers := handlers.NewTrackHandlers(eventStore, liveHub)
	statsHandlers := handlers.NewStatsHandlers(eventStore, chClient)
	authHandlers := handlers.NewAuthHandlers(userStore)

	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Intake Endpoints (called by the tracking snippet, no authentication)
	r.POST("/session-start", trackHandlers.SessionStart)
	r.POST("/page-view", trackHandlers.PageView)
	r.POST("/article-read", trackHandlers.ArticleRead)
	r.POST("/click", trackHandlers.Click)
	r.POST("/session-end", trackHandlers.SessionEnd)

	r.GET("/session-stats", statsHandlers.SessionStats)
	r.GET("/health", statsHandlers.Health)

	// Live feed: every open connection receives every accepted event.
	r.GET("/ws", liveHub.HandleWS)

	api := r.Group("/api")
	{
		// Dashboard account endpoints (no authentication required)
		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		// Dashboard aggregates (require a valid JWT token)
		statsGroup := api.Group("/stats")
		statsGroup.Use(middleware.AuthRequired())
		{
			statsGroup.GET("/event-counts", statsHandlers.EventCounts)
			statsGroup.GET("/average-event-duration", statsHandlers.AverageEventDuration)
			statsGroup.GET("/active-sessions", statsHandlers.ActiveSessions)
			statsGroup.GET("/top-pages", statsHandlers.TopPages)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Printf("PagePulse API server starting on http://localhost:%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("PagePulse API server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
