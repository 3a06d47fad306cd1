// Package main is the CLI driver for the LC validation client: it submits a
// document set, tracks the job to a terminal state, prints the results and
// optionally downloads the compliance package.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ripclass/lcvalidate/internal/cache"
	"github.com/ripclass/lcvalidate/internal/config"
	"github.com/ripclass/lcvalidate/internal/lchub"
	"github.com/ripclass/lcvalidate/internal/orchestrator"
	"github.com/ripclass/lcvalidate/pkg/models"
)

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("lcvalidate failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var files, tags multiFlag
	flag.Var(&files, "file", "document to validate (repeatable)")
	flag.Var(&tags, "tag", "filename=document-type tag (repeatable)")
	lcNumber := flag.String("lc-number", "", "LC reference number")
	notes := flag.String("notes", "", "free-text notes for the validation")
	lcType := flag.String("lc-type", models.LCTypeAuto, "LC type override (auto lets the server decide)")
	downloadDir := flag.String("download", "", "directory to download the compliance package into")
	historyLimit := flag.Int("history", 0, "list the last N jobs instead of submitting")
	statusFilter := flag.String("status", "", "status filter for -history")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := lchub.NewHTTPClient(cfg.API.BaseURL, cfg.API.APIKey, cfg.API.Timeout)

	var store cache.Cache
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedisCache(cfg.Cache.RedisURL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		store = rc
	} else {
		store = cache.NewMemoryCache()
	}

	orc := orchestrator.New(client, store, orchestrator.Config{
		PollInterval: cfg.Poll.Interval,
		ResultTTL:    cfg.Cache.ResultTTL,
	})
	defer orc.Close()

	if *historyLimit > 0 {
		return printHistory(ctx, orc, *historyLimit, *statusFilter)
	}

	if len(files) == 0 {
		return fmt.Errorf("at least one -file is required")
	}

	req, err := buildRequest(files, tags, *lcNumber, *notes, *lcType)
	if err != nil {
		return err
	}

	res, job, err := orc.Run(ctx, req)
	if err != nil {
		return describeFailure(err)
	}

	if job.Status != models.StatusCompleted {
		msg := "no detail provided"
		if job.ErrorMessage != nil {
			msg = *job.ErrorMessage
		}
		return fmt.Errorf("validation job %s ended in %s: %s", job.ID, job.Status, msg)
	}

	printResults(res)

	if *downloadDir != "" {
		path, err := orc.DownloadPackage(ctx, job.ID, *downloadDir)
		if err != nil {
			return describeFailure(err)
		}
		fmt.Printf("compliance package saved to %s\n", path)
	}

	return nil
}

func buildRequest(files, tags multiFlag, lcNumber, notes, lcType string) (*models.ValidationRequest, error) {
	req := &models.ValidationRequest{
		LCNumber:       lcNumber,
		Notes:          notes,
		DocumentTags:   map[string]string{},
		LCTypeOverride: lcType,
	}

	for _, t := range tags {
		name, docType, ok := strings.Cut(t, "=")
		if !ok {
			return nil, fmt.Errorf("invalid -tag %q, expected filename=document-type", t)
		}
		req.DocumentTags[name] = docType
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		req.Files = append(req.Files, models.FileUpload{
			Name:        filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Data:        data,
		})
	}

	return req, nil
}

func printHistory(ctx context.Context, orc *orchestrator.Orchestrator, limit int, statusFilter string) error {
	page, err := orc.History(ctx, limit, statusFilter)
	if err != nil {
		return describeFailure(err)
	}

	fmt.Printf("%d of %d jobs:\n", len(page.Jobs), page.Total)
	for _, job := range page.Jobs {
		line := fmt.Sprintf("  %s  %-10s", job.ID, job.Status)
		if job.LCNumber != "" {
			line += "  " + job.LCNumber
		}
		fmt.Println(line)
	}
	return nil
}

func printResults(res *models.ValidationResults) {
	fmt.Printf("validated %d documents, %d issues (%d critical, %d warnings)\n",
		res.Analytics.DocumentCount,
		res.Analytics.IssueCount,
		res.Analytics.CriticalCount,
		res.Analytics.WarningCount,
	)
	for _, doc := range res.Documents {
		fmt.Printf("  %-30s %-18s %s\n", doc.FileName, doc.DocumentType, doc.Status)
	}
	for _, issue := range res.Issues {
		fmt.Printf("  [%s] %s %s\n", issue.Severity, issue.Rule, issue.Message)
	}
}

// describeFailure turns a classified error into actionable guidance where the
// error carries enough structure for it.
func describeFailure(err error) error {
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		return err
	}

	switch verr.Kind {
	case models.KindQuota:
		msg := "validation quota exhausted"
		if verr.Quota != nil {
			msg = fmt.Sprintf("validation quota exhausted (%d of %d used)", verr.Quota.Used, verr.Quota.Limit)
		}
		if verr.UpgradeURL != "" {
			msg += ", upgrade at " + verr.UpgradeURL
		}
		return errors.New(msg)
	case models.KindRateLimit:
		return errors.New("rate limited by the validation service, try again shortly")
	default:
		return verr
	}
}
