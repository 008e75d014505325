// cmd/api/main.go
// Main entry point for the application
// This file bootstraps all components and starts the server

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Internal packages
	"github.com/loquiapp/loqui-backend/internal/auth"
	"github.com/loquiapp/loqui-backend/internal/chat"
	"github.com/loquiapp/loqui-backend/internal/common/database"
	"github.com/loquiapp/loqui-backend/internal/common/utils"
	"github.com/loquiapp/loqui-backend/internal/config"
	"github.com/loquiapp/loqui-backend/internal/contacts"
	"github.com/loquiapp/loqui-backend/internal/directory"
	"github.com/loquiapp/loqui-backend/internal/media"
	"github.com/loquiapp/loqui-backend/internal/search"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	log.Println("========================================")
	log.Println("🚀 Starting Loqui Messaging API")
	log.Println("========================================")

	// 1. Load environment variables
	log.Println("📁 Step 1: Loading .env file...")
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: No .env file found (%v), using environment variables", err)
	}

	// 2. Load and validate configuration
	log.Println("📋 Step 2: Loading configuration...")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("❌ Configuration validation failed:", err)
	}
	log.Println("✅ Configuration is valid")

	// 3. Connect to PostgreSQL
	log.Println("🗄️  Step 3: Connecting to PostgreSQL...")
	db, err := database.NewPostgresDBFromURL(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("❌ Failed to connect to PostgreSQL:", err)
	}
	defer db.Close()
	log.Println("✅ Connected to PostgreSQL successfully")

	// 4. Connect to Redis (optional; disables the event listener and cache
	// when absent)
	log.Println("📮 Step 4: Connecting to Redis...")
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClientFromURL(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable (%v), continuing without cache and block events", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Println("✅ Connected to Redis successfully")
		}
	}

	// 5. Run database migrations
	log.Println("🔨 Step 5: Running database migrations...")
	if err := runMigrations(db); err != nil {
		log.Fatal("❌ Failed to run migrations: ", err)
	}
	log.Println("✅ Database migrations completed")

	// 6. Wire services
	log.Println("🔧 Step 6: Wiring services...")

	contactsRepo := contacts.NewPostgresRepository(db)
	contactsService := contacts.NewService(contactsRepo, redisClient, cfg.ContactEventsChannel)

	chatRepo := chat.NewPostgresRepository(db)
	directoryService := directory.NewService(db)
	mediaService := media.NewService(db)
	unreadCache := chat.NewUnreadCache(redisClient, cfg.UnreadCacheTTL)

	conversationService := chat.NewConversationService(chatRepo, directoryService, contactsService)
	messageService := chat.NewMessageService(chatRepo, conversationService, directoryService, mediaService, chat.LogNotifier{}, unreadCache)

	chatHandler := chat.NewHandler(conversationService, messageService)
	contactsHandler := contacts.NewHandler(contactsService)
	authMiddleware := auth.NewMiddleware(cfg.JWTSecret)

	// 7. Background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if redisClient != nil {
		listener := chat.NewBlockBoundaryListener(chatRepo, conversationService, redisClient, cfg.ContactEventsChannel)
		go listener.Run(ctx)
	} else {
		log.Println("⚠️  Block-boundary listener disabled (no Redis)")
	}

	if cfg.IndexerEnabled {
		indexer := search.NewIndexer(messageService, search.LogSink{}, cfg.IndexerInterval)
		go indexer.Start(ctx)
	}

	// 8. Routes
	log.Println("🌐 Step 7: Registering routes...")
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			utils.ErrorResponse(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		utils.MessageResponse(w, "ok", http.StatusOK)
	}).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	chat.RegisterRoutes(router, chatHandler, authMiddleware.Authenticate)
	contacts.RegisterRoutes(router, contactsHandler, authMiddleware.Authenticate)

	// 9. Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("✅ Server listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("❌ Server failed:", err)
		}
	}()

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("⚠️  Shutdown signal received...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server shutdown error: %v", err)
	}
	log.Println("👋 Server stopped")
}

// runMigrations creates the schema if it does not exist. The pair_key unique
// index is what makes get-or-create of a private conversation race-safe.
func runMigrations(db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            username VARCHAR(64) NOT NULL UNIQUE,
            display_name VARCHAR(128) NOT NULL DEFAULT '',
            avatar_url TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

		`CREATE TABLE IF NOT EXISTS media_files (
            id BIGSERIAL PRIMARY KEY,
            owner_id BIGINT NOT NULL,
            mime_type VARCHAR(128) NOT NULL,
            size_bytes BIGINT NOT NULL DEFAULT 0,
            url TEXT NOT NULL,
            thumbnail_url TEXT,
            duration_ms INT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

		`CREATE TABLE IF NOT EXISTS conversations (
            id BIGSERIAL PRIMARY KEY,
            type VARCHAR(16) NOT NULL,
            name VARCHAR(128),
            description VARCHAR(1024),
            avatar_url TEXT,
            created_by BIGINT,
            pair_key TEXT UNIQUE,
            last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_message_id BIGINT NOT NULL DEFAULT 0,
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            deleted_at TIMESTAMPTZ,
            settings JSONB NOT NULL DEFAULT '{}',
            metadata JSONB NOT NULL DEFAULT '{}',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

		`CREATE TABLE IF NOT EXISTS conversation_members (
            conversation_id BIGINT NOT NULL REFERENCES conversations(id),
            user_id BIGINT NOT NULL,
            is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
            is_archived BOOLEAN NOT NULL DEFAULT FALSE,
            is_dnd BOOLEAN NOT NULL DEFAULT FALSE,
            draft TEXT NOT NULL DEFAULT '',
            last_read_message_id BIGINT NOT NULL DEFAULT 0,
            last_acceptable_message_id BIGINT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (conversation_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            conversation_id BIGINT NOT NULL REFERENCES conversations(id),
            sender_id BIGINT NOT NULL,
            message_type VARCHAR(16) NOT NULL,
            content TEXT,
            media_id BIGINT,
            reply_to_message_id BIGINT,
            original_message_id BIGINT,
            client_message_id UUID,
            status VARCHAR(16) NOT NULL DEFAULT 'sent',
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            is_edited BOOLEAN NOT NULL DEFAULT FALSE,
            edited_at TIMESTAMPTZ,
            indexed BOOLEAN NOT NULL DEFAULT FALSE,
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            deleted_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_client_id
            ON messages(conversation_id, client_message_id)
            WHERE client_message_id IS NOT NULL`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
            ON messages(conversation_id, id DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_unindexed
            ON messages(id) WHERE indexed = FALSE AND is_deleted = FALSE`,

		`CREATE TABLE IF NOT EXISTS read_statuses (
            user_id BIGINT NOT NULL,
            conversation_id BIGINT NOT NULL REFERENCES conversations(id),
            last_read_message_id BIGINT NOT NULL DEFAULT 0,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (user_id, conversation_id)
        )`,

		`CREATE TABLE IF NOT EXISTS contact_blocks (
            user_id BIGINT NOT NULL,
            blocked_user_id BIGINT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (user_id, blocked_user_id)
        )`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
