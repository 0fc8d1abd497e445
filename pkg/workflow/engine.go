package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/asset"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/export"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/publisher"
)

// StoryPlanner は構成案の生成と検証を担うステージです。
type StoryPlanner interface {
	Plan(ctx context.Context, project *domain.Project) error
}

// StyleLocker はスタイル・キャラクター参照画像の確定を担うステージです。
type StyleLocker interface {
	Lock(ctx context.Context, project *domain.Project, storyDir string) error
}

// ArtDirector は構成案から描画指示書を導出するステージです。
type ArtDirector interface {
	Direct(project *domain.Project) ([]domain.ArtSpec, error)
}

// PageRenderer は全ページのレンダリングを担うステージです。
type PageRenderer interface {
	RenderAll(ctx context.Context, project *domain.Project, storyDir string) error
}

// Reviewer は整合性判定と是正再レンダリングを担うステージです。
type Reviewer interface {
	Review(ctx context.Context, project *domain.Project, storyDir string) error
}

// Publisher は確定済みの StoryRecord を成果物として永続化するステージです。
type Publisher interface {
	Publish(ctx context.Context, record *domain.StoryRecord, storyDir string) (publisher.PublishResult, error)
}

// StateSnapshotter はステージ遷移ごとのプロジェクト状態を永続化します。
type StateSnapshotter interface {
	Snapshot(ctx context.Context, project *domain.Project, storyDir string)
}

// EngineArgs は Engine の構築に必要な全ステージです。
type EngineArgs struct {
	Planner     StoryPlanner
	Locker      StyleLocker
	Director    ArtDirector
	Renderer    PageRenderer
	Reviewer    Reviewer
	Publisher   Publisher
	Snapshotter StateSnapshotter
	BaseDir     string
}

// Engine はブリーフからエクスポートまでの全ステージを順に実行する司令塔です。
// ステージ境界ごとにプロジェクト状態を前進させ、スナップショットを保存します。
// いずれかのステージが致命的エラーを返した場合、プロジェクトは原因ステージと
// 理由を記録して failed へ確定します。
type Engine struct {
	planner     StoryPlanner
	locker      StyleLocker
	director    ArtDirector
	renderer    PageRenderer
	reviewer    Reviewer
	publisher   Publisher
	snapshotter StateSnapshotter
	baseDir     string
}

// NewEngine は全ステージを結線した Engine を作成します。
func NewEngine(args EngineArgs) *Engine {
	return &Engine{
		planner:     args.Planner,
		locker:      args.Locker,
		director:    args.Director,
		renderer:    args.Renderer,
		reviewer:    args.Reviewer,
		publisher:   args.Publisher,
		snapshotter: args.Snapshotter,
		baseDir:     args.BaseDir,
	}
}

// Run は正規化済みプロジェクトを受け取り、ワークフロー全体を実行します。
// 成功時はエクスポート成果物の情報を返します。
func (e *Engine) Run(ctx context.Context, project *domain.Project) (*publisher.PublishResult, error) {
	storyDir, err := asset.StoryDir(e.baseDir, project.Slug)
	if err != nil {
		return nil, fmt.Errorf("出力ディレクトリの解決に失敗しました: %w", err)
	}

	slog.Info("絵本生成ワークフローを開始します",
		"slug", project.Slug, "title", project.Title,
		"pages", project.PageCount, "output", storyDir)

	// 1. プランニング
	if err := e.planner.Plan(ctx, project); err != nil {
		return nil, e.fail(ctx, project, storyDir, err)
	}
	if err := e.advance(ctx, project, storyDir, domain.StateStyling); err != nil {
		return nil, err
	}

	// 2. スタイル・キャラクターロック
	if err := e.locker.Lock(ctx, project, storyDir); err != nil {
		return nil, e.fail(ctx, project, storyDir, err)
	}
	if err := e.advance(ctx, project, storyDir, domain.StateDraftingArt); err != nil {
		return nil, err
	}

	// 3. 描画指示の導出
	specs, err := e.director.Direct(project)
	if err != nil {
		return nil, e.fail(ctx, project, storyDir, err)
	}
	project.Specs = specs
	if err := e.advance(ctx, project, storyDir, domain.StateRendering); err != nil {
		return nil, err
	}

	// 4. レンダリング
	if err := e.renderer.RenderAll(ctx, project, storyDir); err != nil {
		return nil, e.fail(ctx, project, storyDir, err)
	}
	if err := e.advance(ctx, project, storyDir, domain.StateQA); err != nil {
		return nil, err
	}

	// 5. 整合性判定ループ
	if err := e.reviewer.Review(ctx, project, storyDir); err != nil {
		return nil, e.fail(ctx, project, storyDir, err)
	}

	// 6. 集約とパブリッシュ
	record, err := export.Assemble(project)
	if err != nil {
		return nil, e.fail(ctx, project, storyDir, err)
	}
	result, err := e.publisher.Publish(ctx, record, storyDir)
	if err != nil {
		return nil, e.fail(ctx, project, storyDir, err)
	}

	if err := e.advance(ctx, project, storyDir, domain.StateExported); err != nil {
		return nil, err
	}

	slog.Info("絵本生成ワークフローが完了しました",
		"slug", project.Slug, "html", result.HTMLPath, "data", result.DataPath)
	return &result, nil
}

// advance は状態を前進させてスナップショットを保存します。
func (e *Engine) advance(ctx context.Context, project *domain.Project, storyDir string, next domain.ProjectState) error {
	if err := project.Advance(next); err != nil {
		return e.fail(ctx, project, storyDir, err)
	}
	slog.Info("ステージが完了しました", "slug", project.Slug, "state", project.State)
	e.snapshot(ctx, project, storyDir)
	return nil
}

// fail はプロジェクトを failed へ確定し、最終状態を保存したうえで元のエラーを返します。
func (e *Engine) fail(ctx context.Context, project *domain.Project, storyDir string, cause error) error {
	stage := project.State
	project.Fail(stage, cause)
	slog.Error("ワークフローが失敗しました",
		"slug", project.Slug, "stage", stage, "error", cause)
	e.snapshot(ctx, project, storyDir)
	return cause
}

func (e *Engine) snapshot(ctx context.Context, project *domain.Project, storyDir string) {
	if e.snapshotter == nil {
		return
	}
	e.snapshotter.Snapshot(ctx, project, storyDir)
}
