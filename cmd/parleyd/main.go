package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"goa.design/clue/log"

	"github.com/parley-dev/parley/config"
	"github.com/parley-dev/parley/events"
	"github.com/parley-dev/parley/models/anthropic"
	"github.com/parley-dev/parley/models/openai"
	"github.com/parley-dev/parley/negotiation"
	"github.com/parley-dev/parley/profile"
	"github.com/parley-dev/parley/resonance"
	"github.com/parley-dev/parley/session"
	"github.com/parley-dev/parley/skill"
	"github.com/parley-dev/parley/telemetry"
)

func main() {
	var (
		hostF     = flag.String("host", "localhost", "Server host")
		httpPortF = flag.String("http-port", "8000", "HTTP port")
		secureF   = flag.Bool("secure", false, "Use https")
		dbgF      = flag.Bool("debug", false, "Log request and response bodies")
		modelF    = flag.String("model", "anthropic", "LLM backend: anthropic or openai")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg := config.Load()
	logger := telemetry.NewClueLogger()

	client, err := newModelClient(*modelF)
	if err != nil {
		log.Fatal(ctx, err)
	}

	runner, err := skill.NewRunner(skill.RunnerOptions{
		Client:               client,
		MaxValidationRetries: 2,
		Timeout:              cfg.SkillTimeout,
		Logger:               logger,
		Metrics:              telemetry.NewNoopMetrics(),
		Tracer:               telemetry.NewNoopTracer(),
	})
	if err != nil {
		log.Fatal(ctx, err)
	}

	bus := events.NewBus()
	registerLoggingSink(bus, logger)

	engine := negotiation.NewEngine(negotiation.Deps{
		Store:    session.NewStore(),
		Bus:      bus,
		Profiles: profile.NewMemoryStore(),
		Encoder:  resonance.NewVectorCache(resonance.NewHashingEncoder(256)),
		Detector: resonance.NewCosineDetector(),
		Runner:   runner,
		Config:   cfg,
		Logger:   logger,
	})

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)

	addr := "http://localhost:80"
	u, err := url.Parse(addr)
	if err != nil {
		log.Fatalf(ctx, err, "invalid URL %#v", addr)
	}
	if *secureF {
		u.Scheme = "https"
	}
	if *hostF != "" {
		u.Host = *hostF
	}
	if *httpPortF != "" {
		h, _, splitErr := net.SplitHostPort(u.Host)
		if splitErr != nil {
			h = u.Host
		}
		u.Host = net.JoinHostPort(h, *httpPortF)
	}
	handleHTTPServer(ctx, u, engine, &wg, errc, logger)

	log.Printf(ctx, "exiting (%v)", <-errc)
	cancel()
	wg.Wait()
	log.Printf(ctx, "exited")
}

func newModelClient(name string) (skill.Client, error) {
	switch name {
	case "openai":
		return openai.NewFromAPIKey(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
	case "anthropic", "":
		return anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"), "claude-3-5-sonnet-latest")
	default:
		return nil, fmt.Errorf("parleyd: unknown -model %q", name)
	}
}

// registerLoggingSink wires a trivial Sink that logs every event at debug
// level, so a freshly started daemon has some observability even before an
// operator's own subscriber connects.
func registerLoggingSink(bus events.Bus, logger telemetry.Logger) {
	_, _ = bus.Subscribe(events.SinkFunc(func(ctx context.Context, ev events.Event) error {
		logger.Debug(ctx, "event", "session_id", ev.SessionID, "kind", string(ev.Kind), "seq", ev.Seq)
		return nil
	}))
}
