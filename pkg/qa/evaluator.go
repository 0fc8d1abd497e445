package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/prompts"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"golang.org/x/time/rate"
)

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

// Evaluation は1回の整合性判定の結果です。
// Deviations にはドリフト時の逸脱点を、再レンダリングで回避すべき制約の形で列挙します。
type Evaluation struct {
	Verdict    domain.Verdict
	Deviations []string
}

// DriftEvaluator はレンダリング結果がロック済みの視覚的アイデンティティに
// 忠実かどうかを判定する境界です。
type DriftEvaluator interface {
	Evaluate(ctx context.Context, project *domain.Project, spec domain.ArtSpec, result domain.RenderResult) (*Evaluation, error)
}

// TextGenerator は判定に使う生成AIクライアントの最小契約です。
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string, model string) (*gemini.Response, error)
}

// AssetUploader は候補画像を File API へ登録する契約です。
type AssetUploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

// GeminiEvaluator は生成AIに候補ページと参照画像を見せ、JSON 判定を受け取る
// DriftEvaluator 実装です。
type GeminiEvaluator struct {
	aiClient      TextGenerator
	uploader      AssetUploader
	promptBuilder *prompts.TextPromptBuilder
	model         string
	limiter       *rate.Limiter
}

// NewGeminiEvaluator は依存関係を注入して GeminiEvaluator を初期化します。
func NewGeminiEvaluator(aiClient TextGenerator, uploader AssetUploader, pb *prompts.TextPromptBuilder, model string, limiter *rate.Limiter) *GeminiEvaluator {
	return &GeminiEvaluator{
		aiClient:      aiClient,
		uploader:      uploader,
		promptBuilder: pb,
		model:         model,
		limiter:       limiter,
	}
}

// driftResponse は判定担当から返される JSON の構造です。
type driftResponse struct {
	Verdict    string   `json:"verdict"`
	Deviations []string `json:"deviations"`
}

// Evaluate は候補画像をアップロードし、スタイル・キャラクター参照との
// 整合性判定を取得します。
func (e *GeminiEvaluator) Evaluate(ctx context.Context, project *domain.Project, spec domain.ArtSpec, result domain.RenderResult) (*Evaluation, error) {
	if project.Style == nil || project.Style.FileURI == "" {
		return nil, fmt.Errorf("スタイル参照の File URI が未設定のため整合性判定できません")
	}

	candidateURI, err := e.uploader.UploadFile(ctx, result.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("ページ %d の候補画像アップロードに失敗しました: %w", result.PageIndex, err)
	}

	references := make([]string, 0, len(spec.Outline.Characters))
	for _, name := range spec.Outline.Characters {
		char := project.FindCharacter(name)
		if char == nil || char.FileURI == "" {
			return nil, fmt.Errorf("キャラクター %q の参照 URI が未設定のため整合性判定できません", name)
		}
		references = append(references, fmt.Sprintf("CHARACTER REFERENCE %s: %s", char.Name, char.FileURI))
	}

	prompt, err := e.promptBuilder.Build(prompts.ModeDrift, prompts.TemplateData{
		PageIndex:    spec.PageIndex,
		SceneIntent:  spec.Outline.SceneIntent,
		StyleURI:     project.Style.FileURI,
		References:   references,
		CandidateURI: candidateURI,
	})
	if err != nil {
		return nil, fmt.Errorf("整合性判定プロンプトの生成に失敗しました: %w", err)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	slog.Info("ページの整合性を判定します",
		"slug", project.Slug, "page", spec.PageIndex, "trace_id", result.TraceID, "model", e.model)

	resp, err := e.aiClient.GenerateContent(ctx, prompt, e.model)
	if err != nil {
		return nil, fmt.Errorf("整合性判定の呼び出しに失敗しました: %w", err)
	}

	return parseEvaluation(resp.Text)
}

// parseEvaluation は AI 応答から判定 JSON を取り出して構造化します。
// pass 以外の判定はすべて drift として扱います。
func parseEvaluation(raw string) (*Evaluation, error) {
	raw = strings.TrimSpace(raw)
	rawJSON := raw

	if matches := jsonBlockRegex.FindStringSubmatch(raw); len(matches) > 1 {
		rawJSON = matches[1]
	} else if first, last := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); first != -1 && last > first {
		rawJSON = raw[first : last+1]
	}

	var resp driftResponse
	if err := json.Unmarshal([]byte(rawJSON), &resp); err != nil {
		return nil, fmt.Errorf("整合性判定の応答を解析できませんでした: %w", err)
	}

	if strings.EqualFold(resp.Verdict, string(domain.VerdictPass)) {
		return &Evaluation{Verdict: domain.VerdictPass}, nil
	}
	return &Evaluation{Verdict: domain.VerdictDrift, Deviations: resp.Deviations}, nil
}
