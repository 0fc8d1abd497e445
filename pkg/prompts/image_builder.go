package prompts

import (
	"fmt"
	"strings"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"
)

const (
	// QualityTags はクオリティ向上のための共通タグです。
	QualityTags = "high resolution, sharp focus, clean composition, masterpiece"

	// BaseNegativePrompt は全生成リクエスト共通の Negative Prompt です。
	BaseNegativePrompt = "text, alphabet, letters, words, speech bubble, signatures, watermark, username, low quality, distorted, bad anatomy, extra limbs"

	// StyleSystemInstruction はスタイル参照画像生成時の役割定義です。
	StyleSystemInstruction = "You are a professional storybook illustrator. Create a single definitive style reference plate that establishes palette, line quality and rendering technique for an entire picture book."

	// CharacterSystemInstruction はキャラクター参照画像生成時の役割定義です。
	CharacterSystemInstruction = "You are a professional character designer. Create a single full-body character reference in EXACTLY the style of the provided style reference image. Do not invent a new art style."

	// PageSystemInstruction はページ画像生成時の役割定義です。
	PageSystemInstruction = "You are a professional storybook illustrator. Render one full storybook page illustration. Match the provided style reference exactly and keep every character visually identical to its reference image."
)

// ImagePromptBuilder は、ロック済みの画風記述を考慮して画像生成プロンプトを構築します。
type ImagePromptBuilder struct {
	styleSuffix string
}

// NewImagePromptBuilder は新しい ImagePromptBuilder を生成します。
// suffix は全プロンプト末尾へ付与される共通の画風タグです（空なら省略）。
func NewImagePromptBuilder(suffix string) *ImagePromptBuilder {
	return &ImagePromptBuilder{styleSuffix: suffix}
}

// BuildStylePrompt はスタイル参照画像（テキストのみモード）の UserPrompt と SystemPrompt を生成します。
func (pb *ImagePromptBuilder) BuildStylePrompt(descriptor string) (string, string) {
	parts := []string{
		fmt.Sprintf("Definitive art style reference plate: %s", descriptor),
		"sample scene with environment, no specific characters",
		QualityTags,
	}
	if pb.styleSuffix != "" {
		parts = append(parts, pb.styleSuffix)
	}
	return strings.Join(parts, ", "), StyleSystemInstruction
}

// BuildCharacterPrompt はキャラクター参照画像の UserPrompt と SystemPrompt を生成します。
// 生成はスタイル参照画像を条件として行う前提です。
func (pb *ImagePromptBuilder) BuildCharacterPrompt(char domain.Character, style domain.StyleReference) (string, string) {
	subject := char.Name
	if char.VisualTag != "" {
		subject = fmt.Sprintf("%s (%s)", char.Name, char.VisualTag)
	}
	parts := []string{
		fmt.Sprintf("Character reference sheet of %s", subject),
		"full body, neutral standing pose, plain background",
		fmt.Sprintf("rendered in the established style: %s", style.Descriptor),
		QualityTags,
	}
	if pb.styleSuffix != "" {
		parts = append(parts, pb.styleSuffix)
	}
	return strings.Join(parts, ", "), CharacterSystemInstruction
}

// BuildPagePrompt はページ画像の UserPrompt と SystemPrompt を生成します。
// refs には画像生成リクエストへ渡す参照画像を渡す順序どおりに指定します。
// 各参照の役割（スタイル・キャラクター・前ページ）をインデックスで明示します。
func (pb *ImagePromptBuilder) BuildPagePrompt(spec domain.ArtSpec, chars []domain.Character, refs []ReferenceRole) (string, string) {
	// --- System Prompt（役割・画風）---
	var ss strings.Builder
	ss.WriteString(PageSystemInstruction)
	if pb.styleSuffix != "" {
		ss.WriteString(fmt.Sprintf("\n\n### GLOBAL VISUAL STYLE ###\n%s", pb.styleSuffix))
	}

	// --- User Prompt（ページ固有の内容）---
	var us strings.Builder
	us.WriteString(fmt.Sprintf("### STORYBOOK PAGE %d ###\n", spec.PageIndex))
	us.WriteString(fmt.Sprintf("- SCENE: %s\n", spec.Outline.SceneIntent))
	us.WriteString(fmt.Sprintf("- COMPOSITION: %s\n", spec.Composition))
	us.WriteString(fmt.Sprintf("- CAMERA: %s\n", spec.Camera))
	us.WriteString(fmt.Sprintf("- LIGHTING: %s\n", spec.Lighting))
	us.WriteString(fmt.Sprintf("- PALETTE: %s\n", spec.Palette))

	us.WriteString(buildCharacterIdentitySection(chars))

	for i, ref := range refs {
		us.WriteString(fmt.Sprintf("- REFERENCE input_file_%d: %s\n", i+1, ref.Role))
	}

	for _, constraint := range spec.NegativeConstraints {
		us.WriteString(fmt.Sprintf("- DO NOT: %s\n", constraint))
	}

	return us.String(), ss.String()
}

// BuildNegativePrompt は共通 Negative Prompt に ArtSpec の否定制約を連結して返します。
func (pb *ImagePromptBuilder) BuildNegativePrompt(spec domain.ArtSpec) string {
	if len(spec.NegativeConstraints) == 0 {
		return BaseNegativePrompt
	}
	return BaseNegativePrompt + ", " + strings.Join(spec.NegativeConstraints, ", ")
}

// ReferenceRole は参照画像1枚と、その役割の説明の組です。
type ReferenceRole struct {
	Path string
	Role string
}

// buildCharacterIdentitySection は登場キャラクターの視覚的特徴をマスター定義として出力します。
func buildCharacterIdentitySection(chars []domain.Character) string {
	if len(chars) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("### CHARACTER MASTER DEFINITIONS (STRICT IDENTITY) ###\n")
	for _, char := range chars {
		tag := "None"
		if char.VisualTag != "" {
			tag = char.VisualTag
		}
		sb.WriteString(fmt.Sprintf("- SUBJECT [%s]: VISUAL_FEATURES: {%s}\n", char.Name, tag))
	}
	return sb.String()
}
