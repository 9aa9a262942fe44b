package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/flowgate/internal/config"
	"github.com/mattjoyce/flowgate/internal/conversation"
	"github.com/mattjoyce/flowgate/internal/events"
	"github.com/mattjoyce/flowgate/internal/flow"
	"github.com/mattjoyce/flowgate/internal/flowcrypto"
	"github.com/mattjoyce/flowgate/internal/gateway"
	"github.com/mattjoyce/flowgate/internal/log"
	"github.com/mattjoyce/flowgate/internal/messaging"
	"github.com/mattjoyce/flowgate/internal/metrics"
	"github.com/mattjoyce/flowgate/internal/storage"
	"github.com/mattjoyce/flowgate/internal/token"
	"github.com/mattjoyce/flowgate/internal/webhook"
	"github.com/mattjoyce/flowgate/internal/worker"
)

// eventsCapacity sizes the in-memory task outcome ring.
const eventsCapacity = 256

var errMessagingNotConfigured = errors.New("messaging is not configured")

// unconfiguredMessenger fails every send so inbound messages surface as task
// failures when no platform credentials are configured.
type unconfiguredMessenger struct{}

func (unconfiguredMessenger) MarkRead(context.Context, string) error {
	return errMessagingNotConfigured
}
func (unconfiguredMessenger) SendText(context.Context, string, string) error {
	return errMessagingNotConfigured
}
func (unconfiguredMessenger) SendButtons(context.Context, string, messaging.Buttons) error {
	return errMessagingNotConfigured
}
func (unconfiguredMessenger) SendFlow(context.Context, string, messaging.Flow) error {
	return errMessagingNotConfigured
}
func (unconfiguredMessenger) SendTemplate(context.Context, string, messaging.Template) error {
	return errMessagingNotConfigured
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	*configPath = resolveConfigFlag(*configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("flowgate starting", "version", version, "config", cfg.SourcePath)

	key, err := loadFlowKey(cfg.Flow)
	if err != nil {
		logger.Error("failed to load flow private key", "error", err)
		return 1
	}
	cipher, err := flowcrypto.New(key, flowcrypto.WithFailureStatus(cfg.Flow.DecryptFailureStatus))
	if err != nil {
		logger.Error("failed to initialize flow cipher", "error", err)
		return 1
	}

	verifier := webhook.NewVerifier(cfg.Signature.AppSecret, cfg.Signature.AllowsUnsigned(), log.WithComponent("signature"))
	if !verifier.Enabled() {
		logger.Warn("signature.app_secret is empty, inbound requests are not authenticated")
	}

	issuer, err := token.NewIssuer(cfg.Token.Secret, cfg.Token.TTL)
	if err != nil {
		logger.Error("failed to initialize token issuer", "error", err)
		return 1
	}

	location, err := time.LoadLocation(cfg.Flow.Timezone)
	if err != nil {
		logger.Error("failed to load flow timezone", "timezone", cfg.Flow.Timezone, "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	var storeOpts []conversation.StoreOption
	if cfg.Token.VerifiesOnLookup() {
		storeOpts = append(storeOpts, conversation.WithTokenCheck(issuer))
	}
	store := conversation.NewStore(db, storeOpts...)
	logger.Info("conversation store ready", "verify_on_lookup", store.VerifiesTokens())

	var messenger conversation.Messenger = unconfiguredMessenger{}
	if cfg.Messaging.PhoneNumberID != "" && cfg.Messaging.AccessToken != "" {
		client, err := messaging.New(messaging.Config{
			BaseURL:            cfg.Messaging.BaseURL,
			PhoneNumberID:      cfg.Messaging.PhoneNumberID,
			AccessToken:        cfg.Messaging.AccessToken,
			Timeout:            cfg.Messaging.Timeout,
			RetryMaxElapsed:    cfg.Messaging.RetryMaxElapsed,
			FlowMessageVersion: cfg.Messaging.FlowMessageVersion,
		}, log.WithComponent("messaging"))
		if err != nil {
			logger.Error("failed to initialize messaging client", "error", err)
			return 1
		}
		messenger = client
	} else {
		logger.Warn("messaging credentials not configured, inbound messages will not be answered")
	}

	processor := conversation.NewProcessor(store, messenger, issuer, cfg.Conversation, log.WithComponent("conversation"))
	flows := flow.NewService(store, flow.Options{
		CallingTimes:   cfg.Flow.CallingTimes,
		DateWindowDays: cfg.Flow.DateWindow(),
		Location:       location,
	}, flow.WithLogger(log.WithComponent("flow")))

	hub := events.NewHub(eventsCapacity)
	m := metrics.New()

	pool, err := worker.New(
		worker.Config{Size: cfg.Worker.Size, QueueSize: cfg.Worker.QueueSize},
		worker.WithLogger(log.WithComponent("worker")),
		worker.WithReporter(func(o worker.Outcome) {
			hub.Publish("task."+string(o.Result), o)
			m.TaskFinished(o.Task, string(o.Result))
		}),
	)
	if err != nil {
		logger.Error("failed to start worker pool", "error", err)
		return 1
	}
	m.RegisterQueueDepth(pool.Depth)

	srv, err := gateway.New(gateway.ConfigFrom(cfg), gateway.Deps{
		Verifier: verifier,
		Cipher:   cipher,
		Flows:    flows,
		Messages: processor,
		Tasks:    pool,
		Events:   hub,
		Metrics:  m,
		Logger:   log.WithComponent("gateway"),
	})
	if err != nil {
		logger.Error("failed to configure gateway", "error", err)
		return 1
	}

	go conversation.RunPruner(ctx, store, cfg.State.DedupeTTL, cfg.State.PruneInterval, log.WithComponent("conversation"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	logger.Info("flowgate running (press Ctrl+C to stop)")

	code := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("gateway shutdown failed", "error", err)
			code = 1
		}
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		code = 1
	}

	graceCtx, graceCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownGrace)
	defer graceCancel()
	if err := pool.Shutdown(graceCtx); err != nil {
		logger.Warn("background tasks abandoned at shutdown", "queue_depth", pool.Depth(), "error", err)
	}

	logger.Info("flowgate stopped")
	return code
}

// loadFlowKey reads the flow private key from inline PEM or from a file.
func loadFlowKey(cfg config.FlowConfig) (*rsa.PrivateKey, error) {
	if cfg.PrivateKey != "" {
		return flowcrypto.ParsePrivateKey([]byte(cfg.PrivateKey), cfg.Passphrase)
	}
	return flowcrypto.LoadPrivateKey(cfg.PrivateKeyPath, cfg.Passphrase)
}
