package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/director"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/planner"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/prompts"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/publisher"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/qa"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/render"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/stylelock"

	"github.com/patrickmn/go-cache"
	imagekit "github.com/shouni/gemini-image-kit/pkg/generator"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"github.com/shouni/go-text-format/pkg/builder"
	"github.com/shouni/go-text-format/pkg/md2htmlrunner"
	"github.com/shouni/go-web-exact/v2/pkg/extract"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	defaultGeminiTemperature = float32(0.7)
	defaultCacheExpiration   = 5 * time.Minute
	cacheCleanupInterval     = 15 * time.Minute
	defaultTTL               = 5 * time.Minute
)

// Manager はワークフローの各ステージを担うコンポーネント群の共有依存を構築・保持します。
type Manager struct {
	cfg        Config
	httpClient httpkit.ClientInterface
	reader     remoteio.InputReader
	writer     remoteio.OutputWriter
	aiClient   gemini.GenerativeModel
	core       *imagekit.GeminiImageCore
	imgGen     imagekit.ImageGenerator
	limiter    *rate.Limiter
}

// New は設定と I/O 依存を基に Manager を初期化します。
func New(ctx context.Context, cfg Config, httpClient httpkit.ClientInterface, reader remoteio.InputReader, writer remoteio.OutputWriter) (*Manager, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient は必須です")
	}
	if reader == nil {
		return nil, fmt.Errorf("InputReader は必須です")
	}
	if writer == nil {
		return nil, fmt.Errorf("OutputWriter は必須です")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY が未設定です")
	}

	aiClient, err := initializeAIClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}

	core, err := initializeCore(aiClient, reader, httpClient)
	if err != nil {
		return nil, fmt.Errorf("画像生成エンジンの初期化に失敗しました: %w", err)
	}

	imgGen, err := imagekit.NewGeminiGenerator(cfg.ImageModel, core)
	if err != nil {
		return nil, fmt.Errorf("GeminiGenerator の初期化に失敗しました: %w", err)
	}

	return &Manager{
		cfg:        cfg,
		httpClient: httpClient,
		reader:     reader,
		writer:     writer,
		aiClient:   aiClient,
		core:       core,
		imgGen:     imgGen,
		limiter:    rate.NewLimiter(rate.Every(cfg.RateInterval), 2),
	}, nil
}

// BuildEngine は全ステージを実装コンポーネントで結線した Engine を構築します。
func (m *Manager) BuildEngine() (*Engine, error) {
	textPB, err := prompts.NewTextPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("プロンプトビルダーの作成に失敗しました: %w", err)
	}
	imagePB := prompts.NewImagePromptBuilder(m.cfg.StyleSuffix)

	extractor, err := extract.NewExtractor(m.httpClient)
	if err != nil {
		return nil, fmt.Errorf("エクストラクタの初期化に失敗しました: %w", err)
	}

	coordinator := render.New(m.imgGen, m.writer, imagePB, m.limiter, m.cfg.Concurrency, m.cfg.RetryBudget)
	evaluator := qa.NewGeminiEvaluator(m.aiClient, m.core, textPB, m.cfg.GeminiModel, m.limiter)

	htmlRunner, err := buildHTMLRunner()
	if err != nil {
		return nil, err
	}

	return NewEngine(EngineArgs{
		Planner:     planner.New(m.aiClient, m.cfg.GeminiModel, textPB, extractor, m.cfg.MaxWordsPerPage),
		Locker:      stylelock.New(m.imgGen, m.core, m.writer, imagePB, m.limiter),
		Director:    director.New(m.cfg.MaxWordsPerPage),
		Renderer:    coordinator,
		Reviewer:    qa.NewLoop(evaluator, coordinator, m.cfg.RetryBudget),
		Publisher:   publisher.NewStorybookPublisher(m.writer, htmlRunner),
		Snapshotter: NewSnapshotter(m.writer),
		BaseDir:     m.cfg.OutputDir,
	}), nil
}

// initializeAIClient は gemini クライアントを初期化します。
func initializeAIClient(ctx context.Context, apiKey string) (gemini.GenerativeModel, error) {
	aiClient, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:      apiKey,
		Temperature: genai.Ptr(defaultGeminiTemperature),
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return aiClient, nil
}

// initializeCore は画像キャッシュを含む GeminiImageCore を初期化します。
func initializeCore(aiClient gemini.GenerativeModel, reader remoteio.InputReader, httpClient httpkit.ClientInterface) (*imagekit.GeminiImageCore, error) {
	imgCache := cache.New(defaultCacheExpiration, cacheCleanupInterval)
	core, err := imagekit.NewGeminiImageCore(
		aiClient,
		reader,
		httpClient,
		imgCache,
		defaultTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("GeminiImageCore の初期化に失敗しました: %w", err)
	}
	return core, nil
}

// buildHTMLRunner は絵本 HTML 変換用の md2html ランナーを構築します。
func buildHTMLRunner() (md2htmlrunner.Runner, error) {
	md2htmlBuilder, err := builder.NewBuilder(builder.BuilderConfig{
		EnableHardWraps: true,
		Mode:            "webtoon",
	})
	if err != nil {
		return nil, fmt.Errorf("md2htmlBuilder の初期化に失敗しました: %w", err)
	}
	htmlRunner, err := md2htmlBuilder.BuildRunner()
	if err != nil {
		return nil, fmt.Errorf("md2htmlrunner の初期化に失敗しました: %w", err)
	}
	return htmlRunner, nil
}
