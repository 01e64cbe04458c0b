package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"modelrelay/internal/catalog"
	"modelrelay/internal/config"
	"modelrelay/internal/httpx"
	"modelrelay/internal/imagepipe"
	"modelrelay/internal/messages"
	"modelrelay/internal/modelparse"
	"modelrelay/internal/server"
	"modelrelay/internal/upstream"
	"modelrelay/internal/validate"
)

const serveUsage = `Usage:
  modelrelay serve --config <path> [--port <port>]

Flags:
  --config string   Path to YAML configuration file (required)
  --port   int      Override server port from configuration`

const (
	catalogTimeout  = 15 * time.Second
	upstreamTimeout = 120 * time.Second
)

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	if cfgPath == "" {
		return errors.New("serve command requires --config <path>")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort <= 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	catalogClient := catalog.New(catalog.Config{
		URL:    cfg.Catalog.URL,
		APIKey: cfg.Catalog.APIKey,
		TTL:    cfg.Catalog.TTL(),
	}, httpx.NewClient(catalogTimeout))

	pipeline := imagepipe.New(httpx.NewClient(cfg.Images.FetchTimeout()), imagepipe.Options{
		UserAgent: cfg.Images.UserAgent,
		MaxBytes:  cfg.Images.MaxBytes,
	})
	store := imagepipe.NewStore(pipeline, cfg.Assets.UploadURL, cfg.Assets.APIKey)

	validator := validate.New(
		catalogClient,
		modelparse.Rules{
			OnlineSuffix: cfg.Model.OnlineSuffix,
			ContextSizes: cfg.Model.SearchContextSizes,
		},
		messages.NewProcessor(store),
	)

	upstreamClient := upstream.New(upstream.Config{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
	}, httpx.NewClient(upstreamTimeout))

	srv, err := server.New(cfg, validator, catalogClient, upstreamClient)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
