package planner

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
	"github.com/shouni/go-web-exact/v2/pkg/extract"
)

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

// 抽出テキストの上限です。プランナープロンプトの肥大化を防ぎます。
const maxGroundingChars = 8000

// TextGenerator は構成案生成に使う生成AIクライアントの最小契約です。
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string, model string) (*gemini.Response, error)
}

// Planner は外部のプランニング担当（生成AI）へ構造化プロンプトを送り、
// 検証済みのアウトラインを取得します。担当の応答は信頼せず、
// 契約違反時は是正プロンプトで1回だけリトライします。
type Planner struct {
	aiClient      TextGenerator
	model         string
	promptBuilder *prompts.TextPromptBuilder
	extractor     *extract.Extractor
	maxWords      int
}

// New は依存関係を注入して Planner を初期化します。
// extractor は省略可能（nil）で、その場合 SourceURL による根拠付けは行いません。
func New(aiClient TextGenerator, model string, pb *prompts.TextPromptBuilder, extractor *extract.Extractor, maxWords int) *Planner {
	return &Planner{
		aiClient:      aiClient,
		model:         model,
		promptBuilder: pb,
		extractor:     extractor,
		maxWords:      maxWords,
	}
}

// outlineResponse はプランニング担当から返される JSON の構造です。
type outlineResponse struct {
	Title      string `json:"title"`
	Characters []struct {
		Name      string `json:"name"`
		VisualTag string `json:"visual_tag"`
	} `json:"characters"`
	Pages []domain.PageOutline `json:"pages"`
}

// Plan はブリーフからアウトラインを生成し、検証のうえプロジェクトへ反映します。
// 1回の是正リトライ後も契約を満たさない場合は PlanningContractViolation を返します。
func (p *Planner) Plan(ctx context.Context, project *domain.Project) error {
	grounding, err := p.fetchGrounding(ctx, project.SourceURL)
	if err != nil {
		return err
	}

	roster := make([]string, 0, len(project.Characters))
	for _, char := range project.Characters {
		roster = append(roster, char.Name)
	}

	data := prompts.TemplateData{
		Brief:     project.Title,
		Audience:  project.Audience,
		PageCount: project.PageCount,
		MaxWords:  p.maxWords,
		Roster:    roster,
		Grounding: grounding,
	}

	prompt, err := p.promptBuilder.Build(prompts.ModeOutline, data)
	if err != nil {
		return fmt.Errorf("プランナープロンプトの生成に失敗しました: %w", err)
	}

	slog.Info("プランナーへアウトラインを要求します",
		"slug", project.Slug, "pages", project.PageCount, "model", p.model)

	raw, parsed, violation := p.requestOutline(ctx, prompt, project.PageCount, roster)
	if violation == "" && parsed != nil {
		return p.apply(project, parsed)
	}
	if violation == "" {
		violation = "応答を解析できませんでした"
	}

	// 是正リトライは1回のみ。非決定的な担当への無制限リトライは行いません。
	slog.Warn("プランナー応答が契約に違反したため是正リトライを行います",
		"slug", project.Slug, "violation", violation)

	data.Violation = violation
	data.PreviousResponse = truncateString(raw, 2000)
	correctivePrompt, err := p.promptBuilder.Build(prompts.ModeCorrective, data)
	if err != nil {
		return fmt.Errorf("是正プロンプトの生成に失敗しました: %w", err)
	}

	_, parsed, violation = p.requestOutline(ctx, correctivePrompt, project.PageCount, roster)
	if violation == "" && parsed != nil {
		return p.apply(project, parsed)
	}
	if violation == "" {
		violation = "応答を解析できませんでした"
	}
	return &domain.PlanningContractViolation{Reason: violation, Retries: 1}
}

// requestOutline は1回分の要求を実行し、生の応答・解析結果・違反内容を返します。
// 違反内容が空であれば契約を満たしています。
func (p *Planner) requestOutline(ctx context.Context, prompt string, expected int, roster []string) (string, *outlineResponse, string) {
	resp, err := p.aiClient.GenerateContent(ctx, prompt, p.model)
	if err != nil {
		return "", nil, fmt.Sprintf("プランナー呼び出しに失敗しました: %v", err)
	}

	parsed, err := parseResponse(resp.Text)
	if err != nil {
		return resp.Text, nil, err.Error()
	}

	if violation := validate(parsed, expected, roster); violation != "" {
		return resp.Text, nil, violation
	}
	return resp.Text, parsed, ""
}

// validate は契約を検査します: ページ数の厳密一致、1始まりの連番、
// 各ページが参照するキャラクター名の閉包、および必須ロスターの包含です。
func validate(resp *outlineResponse, expected int, roster []string) string {
	declared := make([]string, 0, len(resp.Characters))
	for _, char := range resp.Characters {
		declared = append(declared, char.Name)
	}

	if err := domain.ValidateOutline(resp.Pages, expected, declared); err != nil {
		return err.Error()
	}

	for _, required := range roster {
		found := false
		for _, name := range declared {
			if strings.EqualFold(name, required) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("必須キャラクター %q が宣言されていません", required)
		}
	}
	return ""
}

// apply は検証済みのアウトラインをプロジェクトへ反映します。
func (p *Planner) apply(project *domain.Project, resp *outlineResponse) error {
	project.Outline = resp.Pages

	// 宣言されたキャラクターでロスターを確定します。ブリーフ由来のヒントに
	// visual_tag を補完し、新規キャラクターは末尾へ追加します。
	for _, decl := range resp.Characters {
		if existing := project.FindCharacter(decl.Name); existing != nil {
			if existing.VisualTag == "" {
				existing.VisualTag = decl.VisualTag
			}
			continue
		}
		project.Characters = append(project.Characters, domain.NewCharacter(decl.Name, decl.VisualTag))
	}
	return nil
}

// fetchGrounding は SourceURL が指定されている場合に本文テキストを抽出します。
func (p *Planner) fetchGrounding(ctx context.Context, url string) (string, error) {
	if url == "" || p.extractor == nil {
		return "", nil
	}
	text, _, err := p.extractor.FetchAndExtractText(ctx, url)
	if err != nil {
		return "", fmt.Errorf("ソースURLの抽出に失敗しました (%s): %w", url, err)
	}
	return truncateString(text, maxGroundingChars), nil
}

// parseResponse は AI 応答から JSON を取り出して構造化します。
// コードブロック、最外の波括弧、本文全体の順でフォールバックします。
func parseResponse(raw string) (*outlineResponse, error) {
	raw = strings.TrimSpace(raw)
	var rawJSON string

	matches := jsonBlockRegex.FindStringSubmatch(raw)
	if len(matches) > 1 {
		rawJSON = matches[1]
	} else {
		firstBracket := strings.Index(raw, "{")
		lastBracket := strings.LastIndex(raw, "}")
		if firstBracket != -1 && lastBracket > firstBracket {
			rawJSON = raw[firstBracket : lastBracket+1]
		} else {
			rawJSON = raw
		}
	}

	var resp outlineResponse
	if err := json.Unmarshal([]byte(rawJSON), &resp); err != nil {
		return nil, fmt.Errorf("AI応答に含まれるJSONの解析に失敗しました (応答抜粋: %q): %w", truncateString(raw, 200), err)
	}
	return &resp, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
