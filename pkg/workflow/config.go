package workflow

import (
	"time"
)

// デフォルト値の定義です。
const (
	DefaultGeminiModel  = "gemini-3-flash-preview"
	DefaultImageModel   = "gemini-3-pro-image-preview"
	DefaultRateInterval = 10 * time.Second
	DefaultConcurrency  = 2
	DefaultRetryBudget  = 3
	DefaultMaxWords     = 120
	DefaultOutputDir    = "stories"
	DefaultStyleSuffix  = "children's picture book illustration, soft organic shapes, gentle color harmony, warm and inviting, masterpiece, high resolution"
)

// Config は絵本生成ワークフロー全体の基本設定です。
type Config struct {
	// --- AI Model Settings ---
	GeminiAPIKey string
	GeminiModel  string // プランニングと整合性判定に使うテキストモデル
	ImageModel   string // 参照・ページ生成に使う画像モデル

	// --- Generation Settings ---
	StyleSuffix     string
	RateInterval    time.Duration
	Concurrency     int64 // 同時にレンダリングするページ数
	RetryBudget     int   // ドリフト是正と生成リトライの共通上限
	MaxWordsPerPage int

	// --- Storage & Output Settings ---
	OutputDir string // ローカルパスまたは gs:// プレフィックス

	// --- Timeout & Retries ---
	RequestTimeout time.Duration
}

// NewConfig はデフォルト値で初期化した Config に API キーをセットして返します。
func NewConfig(apiKey string) Config {
	cfg := DefaultConfig()
	cfg.GeminiAPIKey = apiKey
	return cfg
}

// DefaultConfig は推奨されるデフォルト設定を返すヘルパー関数です。
func DefaultConfig() Config {
	return Config{
		GeminiModel:     DefaultGeminiModel,
		ImageModel:      DefaultImageModel,
		StyleSuffix:     DefaultStyleSuffix,
		RateInterval:    DefaultRateInterval,
		Concurrency:     DefaultConcurrency,
		RetryBudget:     DefaultRetryBudget,
		MaxWordsPerPage: DefaultMaxWords,
		OutputDir:       DefaultOutputDir,
		RequestTimeout:  5 * time.Minute,
	}
}
