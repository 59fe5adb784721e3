package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nostr-threads/internal/config"
	"nostr-threads/internal/graph"
	"nostr-threads/internal/logging"
	"nostr-threads/internal/nips"
	"nostr-threads/internal/relay"
	"nostr-threads/internal/service"
	"nostr-threads/internal/signing"
	"nostr-threads/internal/types"
)

var (
	configPath string
	page       string
	search     string
	post       string
	replyTo    string
	wait       time.Duration
)

func main() {
	flag.StringVar(&configPath, "config", "", "Config file (default ./config.yaml or ~/.nostr-threads/config.yaml)")
	flag.StringVar(&page, "page", "", "Fetch the thread page for an event or author (hex, note, nevent or npub)")
	flag.StringVar(&search, "search", "", "Look up profiles matching text")
	flag.StringVar(&post, "post", "", "Sign and publish a text note")
	flag.StringVar(&replyTo, "reply-to", "", "Event id the -post note replies to")
	flag.DurationVar(&wait, "wait", 0, "Exit after this long (0 waits for a signal)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.Get()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Init(cfg.LogLevel)

	var identity *signing.KeyPair
	if cfg.PrivateKey != "" {
		identity, err = signing.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			log.Fatalf("Invalid private_key: %v", err)
		}
	}

	manager := relay.NewManager(&relay.WebsocketDialer{HandshakeTimeout: cfg.HandshakeTimeout}, relay.Options{
		MaxInFlight:  cfg.MaxInFlight,
		QueryTimeout: cfg.QueryTimeout,
		InboxSize:    cfg.InboxSize,
		AllowPrivate: cfg.AllowPrivateRelays,
	})
	for _, uri := range cfg.Relays {
		manager.TryAddURI(uri)
	}
	slog.Info("relays configured", "count", len(manager.Relays()))

	g := graph.New()
	session := signing.NewSession(identity)
	var svc *service.Service
	svc = service.New(manager, g, signing.NewEngine(signing.LocalBridge{}), session, service.Options{
		QueryTimeout:     cfg.QueryTimeout,
		VerifySignatures: cfg.VerifySignatures,
		Notifier: service.NotifierFunc(func() {
			slog.Info("subscription complete", "stored", svc.StoreLen(), "relations", g.Size())
		}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if wait > 0 {
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			slog.Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	if err := runActions(ctx, svc); err != nil {
		slog.Error("action failed", "error", err)
		cancel()
	}

	<-done
	svc.Wait()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	manager.Close(closeCtx)

	stats := manager.Stats()
	fmt.Printf("stored %d events, %d relation subjects, %d frames received, %d dropped\n",
		svc.StoreLen(), g.Size(), stats.FramesReceived, stats.FramesDropped)
}

func runActions(ctx context.Context, svc *service.Service) error {
	if page != "" {
		hex, err := resolveID(page)
		if err != nil {
			return fmt.Errorf("page %q: %w", page, err)
		}
		sub := svc.FetchPage(ctx, hex, time.Time{})
		slog.Info("page requested", "sub", sub, "id", hex)
	}

	if search != "" {
		if sub, issued := svc.LookupUser(ctx, search); issued {
			slog.Info("profile search requested", "sub", sub, "search", search)
		}
	}

	if post != "" {
		parent := ""
		if replyTo != "" {
			var err error
			if parent, err = resolveID(replyTo); err != nil {
				return fmt.Errorf("reply-to %q: %w", replyTo, err)
			}
		}
		evt := svc.CreateEvent(types.KindText, post, parent, "", nil)
		if err := svc.Send(ctx, types.KindText, evt, ""); err != nil {
			return err
		}
		slog.Info("note published", "event_id", evt.ID, "pubkey", evt.PubKey)
	}
	return nil
}

// resolveID accepts hex or a note, npub or nevent identifier.
func resolveID(s string) (string, error) {
	switch {
	case strings.HasPrefix(s, nips.PrefixNEvent):
		fields, err := nips.Bech32ToTLV(nips.PrefixNEvent, s)
		if err != nil {
			return "", err
		}
		return fields[nips.TLVSpecial], nil
	case strings.HasPrefix(s, nips.PrefixNote):
		return nips.Bech32ToHex(nips.PrefixNote, s)
	default:
		return nips.Bech32ToHex(nips.PrefixNPub, s)
	}
}
