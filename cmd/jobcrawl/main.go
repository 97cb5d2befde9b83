// Package main is the jobcrawl binary: an HTTP service by default, or a
// one-shot crawl when given the links, details or all subcommand.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/config"
	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/engine"
	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
	"github.com/JakeFAU/realtime-job-crawler/internal/server"
)

const usage = `usage: jobcrawl [-config file] [serve | links | details | all] [flags]

  serve     run the HTTP API and queued run workers (default)
  links     discover job links and save them
  details   extract details for the saved links
  all       discover links, then extract their details
`

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if err := run(*cfgPath, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "jobcrawl: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string, args []string) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	var kind crawler.RunKind
	if cmd != "serve" {
		var err error
		if kind, err = crawler.ParseRunKind(cmd); err != nil {
			flag.Usage()
			return err
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, cfg)
	if err != nil {
		return err //nolint:wrapcheck // already wrapped by Build
	}
	if cmd == "serve" {
		return app.Run(ctx) //nolint:wrapcheck // already wrapped by Run
	}
	defer func() { _ = app.Close(context.WithoutCancel(ctx)) }()

	req, err := parseRunFlags(cmd, args)
	if err != nil {
		return err
	}
	req.Kind = kind
	return crawl(ctx, app.Engine(), app.Logger(), req)
}

func parseRunFlags(name string, args []string) (crawler.RunRequest, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	keywords := fs.String("keywords", "", "Comma separated search keywords")
	limit := fs.Int("limit", 0, "Maximum links per site (0 for no limit)")
	location := keyValues{}
	filters := keyValues{}
	fs.Var(location, "location", "Location filter as key=value, repeatable")
	fs.Var(filters, "filter", "Search filter as key=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return crawler.RunRequest{}, fmt.Errorf("parse %s flags: %w", name, err)
	}

	var query crawler.Query
	for _, k := range strings.Split(*keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			query.Keywords = append(query.Keywords, k)
		}
	}
	if name != string(crawler.RunKindDetails) && len(query.Keywords) == 0 {
		return crawler.RunRequest{}, errors.New("-keywords is required")
	}
	if len(location) > 0 {
		query.Location = location
	}
	if len(filters) > 0 {
		query.Filters = filters
	}
	return crawler.RunRequest{Query: query, Limit: *limit}, nil
}

func crawl(ctx context.Context, eng *engine.Engine, logger *zap.Logger, req crawler.RunRequest) error {
	eng.SetCallbacks(engine.Callbacks{
		OnLink: func(url, source string) {
			logger.Debug("link found", zap.String("source", source), zap.String("url", url))
		},
		OnProgress: func(phase progress.Phase, percent float64) {
			fmt.Fprintf(os.Stderr, "\r%s: %5.1f%%", phase, percent)
		},
	})
	defer fmt.Fprintln(os.Stderr)

	var links []crawler.LinkRecord
	if req.Kind != crawler.RunKindDetails {
		var err error
		links, err = eng.CrawlJobLinks(ctx, req.Query, req.Limit)
		if err != nil {
			return fmt.Errorf("crawl links: %w", err)
		}
		logger.Info("links phase finished", zap.Int("links", len(links)))
		if req.Kind == crawler.RunKindLinks {
			return nil
		}
		if len(links) == 0 {
			logger.Info("no links discovered, skipping details phase")
			return nil
		}
	}
	details, err := eng.CrawlJobDetails(ctx, links)
	if err != nil {
		return fmt.Errorf("crawl details: %w", err)
	}
	logger.Info("details phase finished", zap.Int("details", len(details)))
	return nil
}

// keyValues collects repeated key=value flags.
type keyValues map[string]string

func (kv keyValues) String() string {
	parts := make([]string, 0, len(kv))
	for k, v := range kv {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (kv keyValues) Set(raw string) error {
	k, v, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("expected key=value, got %q", raw)
	}
	kv[strings.TrimSpace(k)] = strings.TrimSpace(v)
	return nil
}
