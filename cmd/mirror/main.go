// Command mirror copies every document of one tenant to S3-compatible
// storage. It reads the same configuration as the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/axenox/Sketch/internal/api"
	"github.com/axenox/Sketch/internal/config"
	"github.com/axenox/Sketch/internal/logging"
	"github.com/axenox/Sketch/internal/mirror"
)

func main() {
	configPath := flag.String("config", "", "YAML override file (default $CONFIG_FILE)")
	vendor := flag.String("vendor", "", "Tenant vendor")
	alias := flag.String("alias", "", "Tenant app alias")
	dryRun := flag.Bool("dry-run", false, "List the object keys without uploading")
	flag.Parse()

	if *vendor == "" || *alias == "" {
		fmt.Fprintln(os.Stderr, "usage: mirror -vendor <vendor> -alias <alias> [-dry-run]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputPath: "stderr"}); err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if !cfg.S3Enabled() && !*dryRun {
		logging.Fatal("S3 mirror is not configured: set S3_ENDPOINT or S3_ACCESS_KEY")
	}

	ctx := context.Background()
	st, err := api.NewRegistry(cfg.DataDir, false, nil, nil).Open(ctx, *vendor, *alias)
	if err != nil {
		logging.Fatal("open tenant failed", zap.Error(err))
	}

	client, err := mirror.NewClient(ctx, mirror.Config{
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    cfg.S3Region,
		Prefix:    cfg.S3Prefix,
	})
	if err != nil {
		logging.Fatal("S3 client init failed", zap.Error(err))
	}

	m := mirror.New(client, cfg.S3Bucket, cfg.S3Prefix)
	if !*dryRun {
		if err := m.EnsureBucket(ctx); err != nil {
			logging.Fatal("bucket check failed", zap.Error(err))
		}
	}

	report, err := m.Run(ctx, st, *vendor, *alias, *dryRun)
	if err != nil {
		logging.Fatal("mirror failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(report)
	if report.Failed > 0 {
		logging.Sync()
		os.Exit(1)
	}
}
