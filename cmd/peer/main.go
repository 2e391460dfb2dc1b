package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"pairview/internal/peer"
	"pairview/pkg/config"
	"pairview/pkg/logger"
)

// Headless participant: joins a room, negotiates a peer session with
// synthetic media, and mirrors the shared editor on stdin/stdout. Meant
// for soak testing a relay and for occupying one seat during manual
// verification.
func main() {
	var (
		serverURL  = flag.String("server", "ws://localhost:8081/ws", "signaling relay websocket URL")
		roomID     = flag.String("room", "", "room id to join (required)")
		token      = flag.String("token", "", "room JWT, if the relay requires one")
		configPath = flag.String("config", "configs/config.yaml", "config file path")
		interactiv = flag.Bool("interactive", false, "read editor lines from stdin")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, "console", nil)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if *roomID == "" {
		log.Fatal("missing required -room flag")
	}

	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 15*time.Second)
	p, err := peer.NewParticipant(dialCtx, peer.ParticipantConfig{
		ServerURL:  *serverURL,
		Token:      *token,
		RoomID:     *roomID,
		ICEServers: iceServers,
		Negotiator: peer.NegotiatorOptions{
			StableWait: cfg.Session.OfferStableWait,
		},
		CodeDebounce:      cfg.Session.CodeDebounce,
		GateCheckInterval: cfg.Session.GateCheckInterval,
	}, log)
	dialCancel()
	if err != nil {
		log.Fatalw("failed to start participant", "error", err)
	}
	defer p.Close()

	p.Editor().OnRemoteChange = func(text string) {
		log.Infow("editor updated by peer", "bytes", len(text))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	if *interactiv {
		go readEditorInput(p, log)
	}

	if err := p.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalw("session ended with error", "error", err)
	}
	log.Info("session ended")
}

func readEditorInput(p *peer.Participant, log *zap.SugaredLogger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case "/audio":
			log.Infow("audio toggled", "enabled", p.Media().ToggleAudio())
		case "/video":
			log.Infow("video toggled", "enabled", p.Media().ToggleVideo())
		default:
			p.Editor().SetText(line)
		}
	}
}
