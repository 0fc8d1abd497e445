package asset

import (
	"fmt"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"

	"github.com/shouni/go-utils/urlpath"
)

// ストーリーディレクトリ配下の成果物レイアウトです。
// stories/<slug>/images/... に画像を、直下に状態・最終成果物を配置します。
const (
	// ImagesDir は生成画像を格納するサブディレクトリ名です。
	ImagesDir = "images"
	// StyleReferenceFile はスタイル参照画像のファイル名です。
	StyleReferenceFile = "style_reference.png"
	// StoryDataFile は最終 StoryRecord の JSON ファイル名です。
	StoryDataFile = "story_data.json"
	// StoryMarkdownFile は HTML 変換前の中間 Markdown のファイル名です。
	StoryMarkdownFile = "storybook.md"
	// StorybookFile はエクスポートされる絵本ドキュメントのファイル名です。
	StorybookFile = "storybook.html"
	// ProjectStateFile はステージ遷移ごとのスナップショットのファイル名です。
	ProjectStateFile = "project_state.json"
)

// StoryDir は出力ベース（ローカルまたは gs://...）とスラグからプロジェクトの
// ストーリーディレクトリを解決します。
func StoryDir(baseDir, slug string) (string, error) {
	return urlpath.ResolveOutputPath(baseDir, slug)
}

// StylePath はスタイル参照画像の保存先パスを返します。
func StylePath(storyDir string) (string, error) {
	return urlpath.ResolveOutputPath(storyDir, ImagesDir+"/"+StyleReferenceFile)
}

// CharacterPath はキャラクター参照画像の保存先パスを返します。
// 名前はスラグ化してファイル名に安全な形へ変換します。
func CharacterPath(storyDir, name string) (string, error) {
	filename := fmt.Sprintf("character_%s.png", domain.Slugify(name))
	return urlpath.ResolveOutputPath(storyDir, ImagesDir+"/"+filename)
}

// PagePath はページ画像の保存先パスを返します。index は1始まりです。
func PagePath(storyDir string, index int) (string, error) {
	filename := fmt.Sprintf("page_%02d.png", index)
	return urlpath.ResolveOutputPath(storyDir, ImagesDir+"/"+filename)
}

// StateSnapshotPath はプロジェクト状態スナップショットの保存先パスを返します。
func StateSnapshotPath(storyDir string) (string, error) {
	return urlpath.ResolveOutputPath(storyDir, ProjectStateFile)
}

// StoryDataPath は最終 StoryRecord JSON の保存先パスを返します。
func StoryDataPath(storyDir string) (string, error) {
	return urlpath.ResolveOutputPath(storyDir, StoryDataFile)
}

// StoryMarkdownPath は中間 Markdown の保存先パスを返します。
func StoryMarkdownPath(storyDir string) (string, error) {
	return urlpath.ResolveOutputPath(storyDir, StoryMarkdownFile)
}

// StorybookPath はエクスポートされる絵本ドキュメントの保存先パスを返します。
func StorybookPath(storyDir string) (string, error) {
	return urlpath.ResolveOutputPath(storyDir, StorybookFile)
}
