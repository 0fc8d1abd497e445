package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/LuisReinoso/law-of-one-illustrated/internal/config"

	"github.com/joho/godotenv"
	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
)

// opts は全サブコマンドで共有される実行時オプションです。
var opts config.CreateOptions

// addAppFlags はアプリケーション全般に適用されるグローバルフラグを定義します。
func addAppFlags(rootCmd *cobra.Command) {
	// --- ブリーフ補完関連 ---
	rootCmd.PersistentFlags().StringVar(&opts.Title, "title", "", "絵本のタイトルを明示します（省略時はブリーフから導出）。")
	rootCmd.PersistentFlags().IntVarP(&opts.Pages, "pages", "p", 0, "生成するページ数（省略時はブリーフから推定、既定 5）。")
	rootCmd.PersistentFlags().StringVarP(&opts.Style, "style", "s", "", "画風の記述（省略時はブリーフから推定）。")
	rootCmd.PersistentFlags().StringVarP(&opts.Audience, "audience", "a", "", "対象読者（既定 children）。")
	rootCmd.PersistentFlags().StringVarP(&opts.SourceURL, "source-url", "u", "", "物語の根拠にするWebページのURL。")
	rootCmd.PersistentFlags().StringArrayVarP(&opts.Characters, "character", "c", nil, "必ず登場させるキャラクター名（複数指定可）。")
	rootCmd.PersistentFlags().BoolVar(&opts.Continuity, "continuity", false, "前ページの画像を参照して場面の連続性を強めます。")

	// --- 生成結果の出力設定 ---
	rootCmd.PersistentFlags().StringVarP(&opts.OutputDir, "output", "o", config.DefaultOutputDir, "保存先ベースディレクトリ（ローカル or gs://...）。")

	// --- AIモデル・挙動設定 ---
	rootCmd.PersistentFlags().StringVar(&opts.AIModel, "model", "", "テキスト生成に使う Gemini モデル名。")
	rootCmd.PersistentFlags().StringVar(&opts.ImageModel, "image-model", "", "画像生成に使う Gemini モデル名。")
	rootCmd.PersistentFlags().Int64Var(&opts.Concurrency, "concurrency", 0, "同時にレンダリングするページ数（既定 2）。")
	rootCmd.PersistentFlags().DurationVar(&opts.HTTPTimeout, "http-timeout", config.DefaultHTTPTimeout, "Webリクエストのタイムアウト。")
	rootCmd.PersistentFlags().DurationVar(&opts.RequestTimeout, "timeout", 0, "ワークフロー全体のタイムアウト（0 で無制限）。")
	rootCmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "デバッグログを有効にします。")
}

// preRunAppE はコマンド実行前に環境変数などの必須チェックを行います。
func preRunAppE(cmd *cobra.Command, args []string) error {
	// .env があれば読み込みます。無くてもエラーにはしません。
	_ = godotenv.Load()

	if opts.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	// Gemini API を利用するため、API キーの存在チェックは欠かせません。
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("環境変数 GEMINI_API_KEY が設定されていません。Gemini API の利用には必須です")
	}
	return nil
}

// Execute はアプリケーションのメインエントリポイントです。
// main.go から呼び出され、cobra のコマンドライン解析を開始します。
func Execute() {
	clibase.Execute(
		"law-of-one-illustrated",
		addAppFlags,
		preRunAppE,
		createCmd,
		topicsCmd,
	)
}
