package config

import (
	"time"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/workflow"

	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義です。
const (
	DefaultHTTPTimeout = 30 * time.Second
	DefaultPages       = 5
	DefaultAudience    = "children"
	DefaultOutputDir   = "stories" // ローカルまたは gs://... を指定できます
)

// Config はアプリケーション全体の環境設定（APIキーやモデル設定）を保持します。
type Config struct {
	GeminiAPIKey string
	GeminiModel  string
	ImageModel   string
	StyleSuffix  string

	Options CreateOptions
}

// LoadConfig は環境変数から設定を読み込み、構造体を返します。
func LoadConfig() *Config {
	return &Config{
		GeminiAPIKey: envutil.GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:  envutil.GetEnv("GEMINI_MODEL", workflow.DefaultGeminiModel),
		ImageModel:   envutil.GetEnv("IMAGE_GEMINI_MODEL", workflow.DefaultImageModel),
		StyleSuffix:  envutil.GetEnv("IMAGE_PROMPT_SUFFIX", workflow.DefaultStyleSuffix),
	}
}

// WorkflowConfig は環境設定と実行時オプションからワークフロー設定を組み立てます。
func (c *Config) WorkflowConfig() workflow.Config {
	cfg := workflow.NewConfig(c.GeminiAPIKey)
	cfg.GeminiModel = c.GeminiModel
	cfg.ImageModel = c.ImageModel
	cfg.StyleSuffix = c.StyleSuffix

	if c.Options.AIModel != "" {
		cfg.GeminiModel = c.Options.AIModel
	}
	if c.Options.ImageModel != "" {
		cfg.ImageModel = c.Options.ImageModel
	}
	if c.Options.OutputDir != "" {
		cfg.OutputDir = c.Options.OutputDir
	}
	if c.Options.Concurrency > 0 {
		cfg.Concurrency = c.Options.Concurrency
	}
	if c.Options.RequestTimeout > 0 {
		cfg.RequestTimeout = c.Options.RequestTimeout
	}
	return cfg
}

// CreateOptions は CLI フラグから渡される実行時のパラメータです。
type CreateOptions struct {
	// ブリーフ補完関連
	Title      string   // --title: タイトルの明示指定
	Pages      int      // --pages: ページ数
	Style      string   // --style: 画風記述
	Audience   string   // --audience: 対象読者
	SourceURL  string   // --source-url: 物語の根拠とするWebページ
	Characters []string // --character: 必須キャラクター（複数指定可）
	Continuity bool     // --continuity: 前ページ参照による連続性モード

	// 出力関連
	OutputDir string // --output

	// AI挙動設定
	AIModel    string // --model
	ImageModel string // --image-model

	// 実行制御
	Concurrency    int64         // --concurrency
	HTTPTimeout    time.Duration // --http-timeout
	RequestTimeout time.Duration // --timeout
	Debug          bool          // --debug
}
