package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/whalespump/live-support/pkg/config"
	"github.com/whalespump/live-support/pkg/logger"
	"github.com/whalespump/live-support/pkg/metrics"
	"github.com/whalespump/live-support/pkg/providers/gemini"
	"github.com/whalespump/live-support/pkg/telegram"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting Telegram webhook server...")

	if err := cfg.ValidateWebhook(); err != nil {
		log.Fatal("Invalid webhook configuration", zap.Error(err))
	}

	m := metrics.NewMetrics("")
	webhook, err := newWebhook(context.Background(), cfg, m, log)
	if err != nil {
		log.Fatal("Failed to create webhook", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(webhook, m, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port), zap.String("mode", cfg.TelegramMode))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func newWebhook(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) (*telegram.Webhook, error) {
	adapter := logger.NewAdapter(log).With("component", "webhook")
	client := telegram.NewClient(cfg.TelegramBotToken, telegram.WithAPIURL(cfg.TelegramAPIURL))
	opts := []telegram.WebhookOption{
		telegram.WithObserver(m),
		telegram.WithLogger(adapter),
	}

	if cfg.TelegramMode == config.ModeRelay {
		chat, err := gemini.NewChatClient(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		core, err := cfg.Orchestrator()
		if err != nil {
			return nil, err
		}
		relay := telegram.NewConversationRelay(chat, core, cfg.Tools(), adapter)
		opts = append(opts, telegram.WithRelay(relay))
	}

	return telegram.NewWebhook(client, cfg.WebAppURL, opts...), nil
}

func newRouter(webhook *telegram.Webhook, m *metrics.Metrics, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))
	webhook.Register(router, "/telegram/webhook")

	return router
}

// ginLogger logs one line per request.
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
