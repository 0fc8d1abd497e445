package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/asset"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"

	"github.com/shouni/go-remote-io/pkg/remoteio"
	"github.com/shouni/go-text-format/pkg/md2htmlrunner"
)

// PublishResult はパブリッシュ処理で生成されたファイルの情報を保持します。
type PublishResult struct {
	DataPath     string // story_data.json のパス
	MarkdownPath string // 中間 Markdown のパス
	HTMLPath     string // 絵本ビューア HTML のパス（変換有効時のみ）
}

// StorybookPublisher は確定済みの StoryRecord を成果物として永続化します。
// ページ画像はレンダリング段階で保存済みのため、ここでは構造化データと
// ドキュメントの書き出しのみを担います。
type StorybookPublisher struct {
	writer     remoteio.OutputWriter
	htmlRunner md2htmlrunner.Runner
}

// NewStorybookPublisher は出力先と HTML コンバーターを注入して初期化します。
// htmlRunner が nil の場合、HTML 変換はスキップされます。
func NewStorybookPublisher(writer remoteio.OutputWriter, htmlRunner md2htmlrunner.Runner) *StorybookPublisher {
	return &StorybookPublisher{
		writer:     writer,
		htmlRunner: htmlRunner,
	}
}

// Publish は story_data.json、中間 Markdown、絵本 HTML を書き出します。
func (p *StorybookPublisher) Publish(ctx context.Context, record *domain.StoryRecord, storyDir string) (PublishResult, error) {
	result := PublishResult{}

	dataPath, err := asset.StoryDataPath(storyDir)
	if err != nil {
		return result, err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return result, fmt.Errorf("StoryRecord のシリアライズに失敗しました: %w", err)
	}
	if err := p.writer.Write(ctx, dataPath, strings.NewReader(string(data)), "application/json; charset=utf-8"); err != nil {
		return result, fmt.Errorf("story_data.json の書き込みに失敗しました: %w", err)
	}
	result.DataPath = dataPath

	markdownPath, err := asset.StoryMarkdownPath(storyDir)
	if err != nil {
		return result, err
	}
	content := buildMarkdown(record)
	if err := p.writer.Write(ctx, markdownPath, strings.NewReader(content), "text/markdown; charset=utf-8"); err != nil {
		return result, fmt.Errorf("Markdown の書き込みに失敗しました: %w", err)
	}
	result.MarkdownPath = markdownPath

	if p.htmlRunner != nil {
		slog.Info("絵本 HTML へ変換します", "slug", record.Slug, "title", record.Title)
		htmlBuffer, err := p.htmlRunner.Run(ctx, record.Title, []byte(content))
		if err != nil {
			return result, fmt.Errorf("HTML の変換に失敗しました: %w", err)
		}

		htmlPath, err := asset.StorybookPath(storyDir)
		if err != nil {
			return result, err
		}
		if err := p.writer.Write(ctx, htmlPath, htmlBuffer, "text/html; charset=utf-8"); err != nil {
			return result, fmt.Errorf("HTML の書き込みに失敗しました: %w", err)
		}
		result.HTMLPath = htmlPath
	}

	slog.Info("パブリッシュが完了しました",
		"slug", record.Slug, "data", result.DataPath, "html", result.HTMLPath)
	return result, nil
}

// buildMarkdown は StoryRecord から go-text-format が解釈可能な
// パネル形式の Markdown を構築します。1ページが1パネルに対応し、
// 本文はナレーションとして扱います。
func buildMarkdown(record *domain.StoryRecord) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", record.Title))

	for _, page := range record.Pages {
		imagePath := path.Join(asset.ImagesDir, filepath.Base(page.Result.ImagePath))
		sb.WriteString(fmt.Sprintf("## Panel: %s\n", imagePath))
		sb.WriteString("- layout: standard\n")

		text := strings.TrimSpace(page.Outline.Text)
		if text != "" {
			sb.WriteString("- speaker: speaker-narration\n")
			sb.WriteString(fmt.Sprintf("- text: %s\n", text))
		} else {
			sb.WriteString("- type: none\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
