package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/LuisReinoso/law-of-one-illustrated/internal/config"
	"github.com/LuisReinoso/law-of-one-illustrated/internal/pipeline"

	"github.com/spf13/cobra"
)

// createCmd はブリーフ1行から完成した絵本（画像・HTML・JSON）を生成します。
var createCmd = &cobra.Command{
	Use:   "create [brief]",
	Short: "ブリーフから完全な絵本を生成します。",
	Long: `自由記述のブリーフを正規化し、構成案の生成、スタイル・キャラクター参照の確定、
全ページのレンダリング、整合性判定、エクスポートまでを一括で実行します。
ページ数や画風はブリーフ本文からも推定されます（例: "..., watercolor, 5 pages"）。`,
	Example: `  law-of-one-illustrated create "brave fox discovers a hidden garden"
  law-of-one-illustrated create "two space friends explore colorful planets" -p 8 -s "flat vector art"
  law-of-one-illustrated create "the law of one for kids" -u https://www.lawofone.info/ --continuity`,
	Args: cobra.MinimumNArgs(1),
	RunE: createCommand,
}

// createCommand は create サブコマンドの実行ロジック本体です。
func createCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	briefText := strings.TrimSpace(strings.Join(args, " "))
	if briefText == "" {
		return fmt.Errorf("ブリーフを指定してください（例: create \"brave fox discovers a hidden garden\"）")
	}

	cfg := config.LoadConfig()
	cfg.Options = opts

	slog.Info("絵本の生成を開始します",
		"brief", briefText,
		"output", cfg.Options.OutputDir,
		"model", cfg.GeminiModel,
		"image_model", cfg.ImageModel)

	if err := pipeline.ExecuteCreate(ctx, cfg, briefText); err != nil {
		return err
	}

	slog.Info("すべての工程が完了しました")
	return nil
}
