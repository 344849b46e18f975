package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MimeLyc/ai-search-assistant/internal/chat"
	"github.com/MimeLyc/ai-search-assistant/internal/config"
	"github.com/MimeLyc/ai-search-assistant/internal/httpapi"
	"github.com/MimeLyc/ai-search-assistant/internal/jobs"
	"github.com/MimeLyc/ai-search-assistant/internal/service"
	"github.com/MimeLyc/ai-search-assistant/pkg/log"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	sessionIdle     = 2 * time.Hour
	housekeeping    = "@every 10m"
	shutdownTimeout = 10 * time.Second
	ingestAttempts  = 3
	ingestBackoff   = 2 * time.Second
	defaultEnvFile  = ".env"
)

type Globals struct {
	Config   string `help:"Optional config file (yaml, json or toml)." type:"path" env:"CONFIG_FILE"`
	EnvFile  string `help:"Dotenv file loaded before the environment is read." default:".env" name:"env-file"`
	LogLevel string `help:"Log level (debug, info, warn, error)." env:"LOG_LEVEL"`
}

type CLI struct {
	Globals

	Serve     ServeCmd     `cmd:"" default:"1" help:"Run the HTTP API and the scheduler."`
	Ask       AskCmd       `cmd:"" help:"Answer one question with web search."`
	Circulars CircularsCmd `cmd:"" help:"Search or ingest RBI circulars."`
	News      NewsCmd      `cmd:"" help:"Refresh and print the recent news digest."`
}

type CircularsCmd struct {
	Search CircularsSearchCmd `cmd:"" help:"Answer a question from the indexed circulars."`
	Ingest CircularsIngestCmd `cmd:"" help:"Scrape the circular index and index every row."`
}

func main() {
	loadDotenv(os.Args[1:])

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("assistant"),
		kong.Description("AI search assistant and RBI circular QA."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

// loadDotenv loads the dotenv file named by --env-file in args before the
// flags are parsed, so env-backed flags see its values.
func loadDotenv(args []string) {
	path := envFileArg(args)
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load %s: %v", path, err)
	}
}

func envFileArg(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--":
			return defaultEnvFile
		case strings.HasPrefix(arg, "--env-file="):
			return strings.TrimPrefix(arg, "--env-file=")
		case arg == "--env-file" && i+1 < len(args):
			return args[i+1]
		}
	}
	return defaultEnvFile
}

func (g *Globals) load(opts appOptions) (*app, error) {
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return nil, err
	}
	level := cfg.System.LogLevel
	if g.LogLevel != "" {
		level = g.LogLevel
	}
	log.InitLogger(log.ParseLevel(level))
	return newApp(cfg, opts)
}

type ServeCmd struct{}

func (c *ServeCmd) Run(g *Globals) error {
	a, err := g.load(appOptions{relevanceGate: true})
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.currentConfig()

	loc, err := time.LoadLocation(cfg.System.TZ)
	if err != nil {
		log.Warn("Unknown TZ %q, using UTC", cfg.System.TZ)
		loc = time.UTC
	}
	engine := cron.New(cron.WithLocation(loc))

	queue := jobs.NewQueue(cfg.Schedule.IngestWorkers, a.store, jobs.WithRetry(ingestAttempts, ingestBackoff))
	queue.Start(a.ingestor.Execute)
	defer queue.Stop()

	sessions := chat.NewManager()
	sched := service.NewScheduler(engine, a.news, a.scraper, queue, cfg.Schedule.CircularsListingURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := engine.AddFunc(housekeeping, func() {
		if n := sessions.Expire(sessionIdle); n > 0 {
			log.Info("Expired %d idle sessions", n)
		}
		if n, err := a.store.DeleteExpired(ctx, time.Now()); err != nil {
			log.Warn("Failed to purge expired cache entries: %v", err)
		} else if n > 0 {
			log.Debug("Purged %d expired cache entries", n)
		}
	}); err != nil {
		return err
	}

	settings, err := config.NewRuntimeSettingsStore(cfg.System.SettingsFile, cfg.RuntimeSettings())
	if err != nil {
		return err
	}

	srv := httpapi.NewServer(sessions, queue,
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
		httpapi.WithAccounts(a.accounts),
		httpapi.WithAssistant(a.assistant),
		httpapi.WithHistory(a.history),
		httpapi.WithNews(a.news),
		httpapi.WithCirculars(a.docqa),
		httpapi.WithScheduler(sched),
		httpapi.WithRuntimeSettingsStore(settings),
		httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			if next.ReplyLanguage != cfg.Assistant.ReplyLanguage {
				log.Info("reply_language %q applies after restart", next.ReplyLanguage)
			}
			if err := a.applySettings(next); err != nil {
				return err
			}
			return sched.Reschedule(next.NewsCron, next.CircularsCron)
		}),
	)

	return runWithComponents(ctx, cfg, sched, engine, srv)
}

type taskScheduler interface {
	Schedule(ctx context.Context, newsExpr, circularsExpr string) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

// runWithComponents blocks until ctx is cancelled or the HTTP server fails.
func runWithComponents(ctx context.Context, cfg *config.Config, scheduler taskScheduler, engine cronEngine, srv httpServer) error {
	if err := scheduler.Schedule(ctx, cfg.Schedule.NewsCron, cfg.Schedule.CircularsCron); err != nil {
		return err
	}
	engine.Start()
	defer func() {
		<-engine.Stop().Done()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.HTTP.Addr)
	}()
	log.Info("Listening on %s", cfg.HTTP.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("Server stopped")
	return nil
}

type AskCmd struct {
	Query string `arg:"" help:"Question to answer."`
}

func (c *AskCmd) Run(g *Globals) error {
	a, err := g.load(appOptions{relevanceGate: false})
	if err != nil {
		return err
	}
	defer a.Close()

	reply := a.assistant.Answer(context.Background(), chat.User{UID: "anonymous"}, c.Query)
	fmt.Println(reply.Answer)
	if reply.Outcome != "" {
		log.Debug("outcome=%s steps=%d", reply.Outcome, reply.Steps)
	}
	return nil
}

type CircularsSearchCmd struct {
	Query      string `arg:"" help:"Question about RBI circulars."`
	NumResults int    `short:"n" default:"5" help:"Number of circulars to retrieve (1-10)."`
	Full       bool   `help:"Print the full text of each matched circular."`
}

func (c *CircularsSearchCmd) Run(g *Globals) error {
	a, err := g.load(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	answer, err := a.docqa.Query(ctx, c.Query, c.NumResults)
	if err != nil {
		return err
	}
	fmt.Println(answer.Response)
	if len(answer.Circulars) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Println("Relevant circulars:")
	for i, circ := range answer.Circulars {
		fmt.Printf("%d. %s (%d%% relevant)\n", i+1, circ.Title, circ.Relevance())
		fmt.Printf("   %s | %s | %s\n", circ.CircularNumber, circ.Date, circ.Link)
		if c.Full {
			fmt.Println(indent(a.docqa.FullContent(ctx, circ.Link), "   "))
		}
	}
	return nil
}

type CircularsIngestCmd struct {
	URL     string `help:"Circular index page." placeholder:"URL"`
	Workers int    `default:"4" help:"Concurrent detail fetches."`
	Limit   int    `help:"Only ingest the first N rows (0 for all)."`
}

func (c *CircularsIngestCmd) Run(g *Globals) error {
	a, err := g.load(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	url := c.URL
	if url == "" {
		url = a.currentConfig().Schedule.CircularsListingURL
	}
	ctx := context.Background()
	listing, err := a.scraper.Listing(ctx, url)
	if err != nil {
		return err
	}
	rows := listing.Rows
	if c.Limit > 0 && len(rows) > c.Limit {
		rows = rows[:c.Limit]
	}
	log.Info("Ingesting %d circulars from %s", len(rows), url)

	var failed int
	for _, res := range a.ingestor.IngestAll(ctx, rows, c.Workers) {
		if res.Err != nil {
			failed++
			log.Error("Failed %s: %v", res.Link, res.Err)
			continue
		}
		log.Debug("Indexed %s as %s", res.Link, res.PointID)
	}
	log.Info("Indexed %d of %d circulars", len(rows)-failed, len(rows))
	if failed > 0 {
		return fmt.Errorf("%d circulars failed", failed)
	}
	return nil
}

type NewsCmd struct{}

func (c *NewsCmd) Run(g *Globals) error {
	a, err := g.load(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	digest, err := a.news.Refresh(context.Background())
	if err != nil {
		return err
	}
	now := time.Now()
	fmt.Printf("%s (%d articles)\n\n", digest.Topic, len(digest.Articles))
	for i, art := range digest.Articles {
		fmt.Printf("%d. %s\n   %s | %s\n", i+1, art.Title, art.Source, art.Age(now))
		if art.Summary != "" {
			fmt.Println(indent(art.Summary, "   "))
		}
		fmt.Printf("   %s\n\n", art.URL)
	}
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
