// Package main is the Basho CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/basho/internal/cli"
	"github.com/hyperjump/basho/internal/config"
	"github.com/hyperjump/basho/internal/hub"
	"github.com/hyperjump/basho/internal/intent"
	"github.com/hyperjump/basho/internal/jobs"
	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/narration"
	"github.com/hyperjump/basho/internal/provider"
	"github.com/hyperjump/basho/internal/reliability"
	"github.com/hyperjump/basho/internal/search"
	"github.com/hyperjump/basho/internal/server"
	"github.com/hyperjump/basho/internal/store"
	"github.com/hyperjump/basho/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/basho/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "replay":
		runReplay()
	case "version", "--version", "-v":
		fmt.Printf("basho version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("environment", cfg.Server.Environment),
		zap.String("provider", cfg.Provider.Kind),
		zap.String("narrator", cfg.Narration.Kind),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg, components, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

// serve runs the HTTP server, job workers, hub heartbeat and fixture watcher until ctx is done
// or one of them fails, then shuts everything down.
func serve(ctx context.Context, cfg *config.Config, c *Components, logger *zap.Logger) error {
	srv := server.NewServer(c.Engine, c.Runner, c.Store, c.Hub, cfg, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error { return c.Runner.Serve(gctx) })
	g.Go(func() error { return c.Hub.Run(gctx, cfg.Hub.HeartbeatInterval) })

	if fp, ok := c.Provider.(*provider.FixtureProvider); ok && cfg.Provider.Watch {
		if err := fp.Watch(gctx); err != nil {
			logger.Warn("fixture watch disabled", zap.Error(err))
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Stop accepting requests before failing the jobs still in flight.
		err := srv.Stop(sctx)
		if jerr := c.Runner.Shutdown(sctx); jerr != nil {
			err = errors.Join(err, fmt.Errorf("job shutdown: %w", jerr))
		}
		return err
	})
	return g.Wait()
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: basho search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
The search runs in sync mode, so the narration and recommendations are printed with the results.
  • --location overrides any place named in the query.
  • --lat/--lng search around an exact point.
  • Use --server "" to run the pipeline in-process without a server.
  • --explain adds the per-scorer breakdown of every result.

Examples:
  basho search cheap ramen near shibuya
  basho search --open-now "coffee"
  basho search --location "tokyo" --limit 5 sushi
  basho search --output json thai food
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchConfigPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func searchConfigPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// searchLimitDefaultFromConfig returns search.default_limit from the config at path, or 10
// when the config cannot be loaded.
func searchLimitDefaultFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil || cfg.Search.DefaultLimit <= 0 {
		return 10
	}
	return cfg.Search.DefaultLimit
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseOutputFormat(s string) (cli.SearchOutputFormat, error) {
	switch s {
	case "json":
		return cli.OutputJSON, nil
	case "text", "":
		return cli.OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])
	configPath := searchConfigPathFromArgs(searchArgs, defaultConfigPath)

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run the pipeline in-process)")
	limit := fs.Int("limit", searchLimitDefaultFromConfig(configPath), "number of results")
	location := fs.String("location", "", "location text, overrides the query")
	lat := fs.Float64("lat", 0, "latitude of an explicit search center")
	lng := fs.Float64("lng", 0, "longitude of an explicit search center")
	lang := fs.String("lang", "", "response language tag (e.g. en, ja)")
	openNow := fs.Bool("open-now", false, "only places reported open now")
	explain := fs.Bool("explain", false, "print the score breakdown of each result")
	outputFormat := fs.String("output", "text", "output format: text (human-readable) or json (parseable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	req := &models.SearchRequest{
		Query:    queryStr,
		Language: *lang,
		Location: *location,
		Limit:    *limit,
		Explain:  *explain,
	}
	if *lat != 0 || *lng != 0 {
		req.Center = &models.LatLng{Lat: *lat, Lng: *lng}
	}
	if *openNow {
		req.Filters = &models.Filters{OpenNow: true}
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, req)
	} else {
		response, err = searchDirect(*configPathFlag, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, req *models.SearchRequest) (*models.SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(serverURL, "/") + "/api/v1/search?mode=" + models.SearchModeSync
	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// searchDirect runs the fast path and the narration job in-process.
func searchDirect(configPath string, req *models.SearchRequest) (*models.SearchResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	ctx := context.Background()
	out, err := components.Engine.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	response := server.BuildResponse(out, models.SearchModeSync)
	final, err := components.Runner.RunSync(ctx, out.State.RequestID)
	if err != nil {
		return nil, err
	}
	if final == nil {
		return nil, errors.New("no request state after narration")
	}
	response.Meta.AssistantStatus = final.Status
	response.Assistant = final.Output
	response.Recommendations = final.Recommendations
	return response, nil
}

func runReplay() {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	id := fs.String("id", "", "request id to fetch")
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if *id == "" && fs.NArg() > 0 {
		*id = fs.Arg(0)
	}
	if *id == "" {
		fmt.Println("Usage: basho replay [--server URL] [--output text|json] -id <requestId>")
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	st, err := requestViaHTTP(*serverURL, *id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteRequestState(os.Stdout, st, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

var errRequestNotFound = errors.New("request not found or expired")

func requestViaHTTP(serverURL, id string) (*models.RequestState, error) {
	endpoint := strings.TrimRight(serverURL, "/") + "/api/v1/requests/" + url.PathEscape(id)
	resp, err := http.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errRequestNotFound
	default:
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var st models.RequestState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &st, nil
}

// Components holds initialized services.
type Components struct {
	Store    store.Store
	Provider provider.Provider
	Hub      *hub.Hub
	Engine   *search.Engine
	Runner   *jobs.Runner
}

func (c *Components) Close() {
	if c.Hub != nil {
		c.Hub.Shutdown()
	}
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
	if c.Store != nil {
		_ = c.Store.Shutdown()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	logger = utils.OrNop(logger)
	st, err := store.New(cfg.Store, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize request store: %w", err)
	}
	c := &Components{Store: st}

	prov, err := provider.New(cfg.Provider, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize provider: %w", err)
	}
	c.Provider = prov

	narrator, err := narration.New(cfg.Narration, logger)
	if err != nil {
		logger.Warn("narrator unavailable, using templates", zap.String("kind", cfg.Narration.Kind), zap.Error(err))
		narrator = narration.NewTemplateNarrator()
	}

	guard := reliability.NewGuard(cfg.Reliability.Policies(), cfg.Reliability.Provider.Policy(), logger)
	c.Engine = search.NewEngine(cfg, intent.NewRuleResolver(), prov, st, guard, logger)

	c.Hub = hub.New(hub.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Production:     cfg.Server.IsProduction(),
		Logger:         logger,
	})
	c.Runner = jobs.NewRunner(st, narrator, hub.NewLocalBroker(c.Hub), cfg.Jobs, logger)

	logger.Info("components initialized",
		zap.String("store", cfg.Store.Backend),
		zap.String("provider", prov.Name()),
		zap.String("narrator", narrator.Name()))
	return c, nil
}

func printUsage() {
	fmt.Println(`basho - Grounded place search with streamed narration

Usage:
  basho server [flags]           Start the HTTP and websocket server
  basho search [flags] <query>   Search places (sync mode, prints narration)
  basho replay [flags] -id <id>  Show the stored state of a request
  basho version                  Show version
  basho help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/basho/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (for in-process mode and the default limit)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to run in-process.
  --limit int        Number of results (default from config, or 10)
  --location string  Location text, overrides the query
  --lat, --lng       Explicit search center
  --lang string      Response language tag
  --open-now         Only places reported open now
  --output string    Output format: text or json (default: text)

Replay Flags:
  --id string        Request id
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Examples:
  basho server
  basho search cheap ramen near shibuya
  basho search --output json "sushi in tokyo"
  basho replay -id 3f0c6a0e-6c38-4d6f-9d0e-2f1a3b7c9e11`)
}
