package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LuisReinoso/law-of-one-illustrated/internal/config"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/brief"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/workflow"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/gcsfactory"
)

// ExecuteCreate はブリーフを正規化し、絵本生成ワークフロー全体を実行します。
func ExecuteCreate(ctx context.Context, cfg *config.Config, briefText string) error {
	project, err := brief.Normalize(briefText, brief.Options{
		Title:      cfg.Options.Title,
		Audience:   cfg.Options.Audience,
		PageCount:  cfg.Options.Pages,
		Style:      cfg.Options.Style,
		SourceURL:  cfg.Options.SourceURL,
		Characters: cfg.Options.Characters,
		Continuity: cfg.Options.Continuity,
	})
	if err != nil {
		return err
	}

	if cfg.Options.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Options.RequestTimeout)
		defer cancel()
	}

	engine, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx, project)
	if err != nil {
		return fmt.Errorf("絵本の生成に失敗しました: %w", err)
	}

	slog.Info("絵本が完成しました",
		"slug", project.Slug, "title", project.Title,
		"html", result.HTMLPath, "data", result.DataPath)
	return nil
}

// buildEngine は I/O 依存を初期化し、結線済みの Engine を構築します。
func buildEngine(ctx context.Context, cfg *config.Config) (*workflow.Engine, error) {
	httpTimeout := cfg.Options.HTTPTimeout
	if httpTimeout <= 0 {
		httpTimeout = config.DefaultHTTPTimeout
	}
	httpClient := httpkit.New(httpTimeout)

	gcsFactory, err := gcsfactory.NewGCSClientFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCS クライアントファクトリの初期化に失敗しました: %w", err)
	}
	reader, err := gcsFactory.NewInputReader()
	if err != nil {
		return nil, err
	}
	writer, err := gcsFactory.NewOutputWriter()
	if err != nil {
		return nil, err
	}

	manager, err := workflow.New(ctx, cfg.WorkflowConfig(), httpClient, reader, writer)
	if err != nil {
		return nil, err
	}
	return manager.BuildEngine()
}
