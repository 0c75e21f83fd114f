package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/whalespump/live-support/pkg/config"
	"github.com/whalespump/live-support/pkg/logger"
	"github.com/whalespump/live-support/pkg/metrics"
	"github.com/whalespump/live-support/pkg/orchestrator"
	"github.com/whalespump/live-support/pkg/providers/gemini"
	"go.uber.org/zap"
)

func main() {
	mode := flag.String("mode", "call", "call (live voice call) or chat (text chat)")
	flag.Parse()

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

	core, err := cfg.Orchestrator()
	if err != nil {
		log.Fatal("Failed to build agent configuration", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.NewMetrics("")
	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, m, log)
		defer srv.Close()
	}

	app := &agent{
		cfg:     cfg,
		core:    core,
		log:     log,
		adapter: logger.NewAdapter(log),
		metrics: m,
	}

	switch *mode {
	case "call":
		err = app.runCall(ctx)
	case "chat":
		err = app.runChat(ctx)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil && ctx.Err() == nil {
		log.Error("Agent stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

type agent struct {
	cfg     *config.Config
	core    orchestrator.Config
	log     *zap.Logger
	adapter *logger.Adapter
	metrics *metrics.Metrics
}

func (a *agent) liveClient() (*gemini.LiveClient, error) {
	opts := []gemini.LiveOption{gemini.WithLogger(a.adapter.With("component", "live"))}
	if a.cfg.LiveEndpoint != "" {
		u, err := url.Parse(a.cfg.LiveEndpoint)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid LIVE_ENDPOINT %q", a.cfg.LiveEndpoint)
		}
		opts = append(opts, gemini.WithEndpoint(u.Scheme, u.Host))
	}
	return gemini.NewLiveClient(a.cfg.APIKey, opts...), nil
}

// chatProvider is nil without a key; the conversation reports the missing
// key to the user itself.
func (a *agent) chatProvider(ctx context.Context) (orchestrator.ChatProvider, error) {
	if a.cfg.APIKey == "" {
		return nil, nil
	}
	client, err := gemini.NewChatClient(ctx, a.cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// printMessages renders agent messages as they are added to the transcript.
func printMessages(t *orchestrator.Transcript) {
	t.Subscribe(func(m orchestrator.Message) {
		if m.Sender != orchestrator.SenderAgent {
			return
		}
		fmt.Printf("\r\033[K🐋 [AGENT] %s\n", m.Text)
	})
}
