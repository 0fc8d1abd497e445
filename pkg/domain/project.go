package domain

import (
	"fmt"
	"strings"
)

// ProjectState はプロジェクトの生成ライフサイクルを表します。
type ProjectState string

const (
	StatePlanning    ProjectState = "planning"
	StateStyling     ProjectState = "styling"
	StateDraftingArt ProjectState = "drafting_art"
	StateRendering   ProjectState = "rendering"
	StateQA          ProjectState = "qa"
	StateExported    ProjectState = "exported"
	StateFailed      ProjectState = "failed"
)

// stateOrder は前進遷移の順序を定義します。failed は任意の非終端状態から到達できます。
var stateOrder = map[ProjectState]int{
	StatePlanning:    0,
	StateStyling:     1,
	StateDraftingArt: 2,
	StateRendering:   3,
	StateQA:          4,
	StateExported:    5,
}

// ページ数の許容範囲です。
const (
	MinPageCount = 1
	MaxPageCount = 50
)

// Project は1つの絵本プロジェクトの全状態を保持します。
// 各ステージは自分が所有するフェーズでのみ Project を変更し、
// exported へ遷移した後は不変として扱います。
type Project struct {
	Slug            string          `json:"slug"`
	Title           string          `json:"title"`
	Audience        string          `json:"audience"`
	PageCount       int             `json:"page_count"`
	StyleDescriptor string          `json:"style_descriptor"`
	SourceURL       string          `json:"source_url,omitempty"`
	Continuity      bool            `json:"continuity"`
	Characters      []Character     `json:"characters"`
	Style           *StyleReference `json:"style,omitempty"`
	Outline         []PageOutline   `json:"outline,omitempty"`
	Specs           []ArtSpec       `json:"specs,omitempty"`
	Results         []RenderResult  `json:"results,omitempty"`
	State           ProjectState    `json:"state"`
	FailureStage    ProjectState    `json:"failure_stage,omitempty"`
	FailureReason   string          `json:"failure_reason,omitempty"`
}

// StyleReference はプロジェクト全体で共有される画風の正準参照画像です。
// 一度設定されたら再生成されず、以降の全ページ生成がこれを条件として参照します。
type StyleReference struct {
	Descriptor string `json:"descriptor"`
	ImagePath  string `json:"image_path"`
	FileURI    string `json:"file_uri,omitempty"`
}

// NewProject はタイトルからスラグを導出し、planning 状態のプロジェクトを生成します。
func NewProject(title, audience string, pageCount int, styleDescriptor string) *Project {
	return &Project{
		Slug:            Slugify(title),
		Title:           title,
		Audience:        audience,
		PageCount:       pageCount,
		StyleDescriptor: styleDescriptor,
		State:           StatePlanning,
	}
}

// Advance は次のステージへの前進遷移を行います。
// 後退や exported 以降の変更は不正としてエラーを返します。
func (p *Project) Advance(next ProjectState) error {
	if p.State == StateExported {
		return fmt.Errorf("exported 済みプロジェクト %q は変更できません", p.Slug)
	}
	if p.State == StateFailed {
		return fmt.Errorf("failed 状態のプロジェクト %q は前進できません", p.Slug)
	}
	cur, ok := stateOrder[p.State]
	dst, ok2 := stateOrder[next]
	if !ok || !ok2 || dst != cur+1 {
		return fmt.Errorf("不正な状態遷移です: %s -> %s", p.State, next)
	}
	p.State = next
	return nil
}

// Fail はプロジェクトを終端の failed 状態へ遷移させ、原因ステージと理由を記録します。
// exported 済みプロジェクトには作用しません。
func (p *Project) Fail(stage ProjectState, reason error) {
	if p.State == StateExported {
		return
	}
	p.FailureStage = stage
	if reason != nil {
		p.FailureReason = reason.Error()
	}
	p.State = StateFailed
}

// FindCharacter は名前からキャラクターを返します。大文字小文字は区別しません。
func (p *Project) FindCharacter(name string) *Character {
	for i := range p.Characters {
		if strings.EqualFold(p.Characters[i].Name, name) {
			return &p.Characters[i]
		}
	}
	return nil
}

// ResultForPage は指定ページの RenderResult を返します。未レンダリングなら nil です。
func (p *Project) ResultForPage(index int) *RenderResult {
	for i := range p.Results {
		if p.Results[i].PageIndex == index {
			return &p.Results[i]
		}
	}
	return nil
}

// Slugify はタイトルからディレクトリ名に安全なスラグを導出します。
// 英数字以外の連続はハイフン1つへ畳み込み、64文字に制限します。
func Slugify(title string) string {
	var sb strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				sb.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(sb.String(), "-")
	if len(slug) > 64 {
		slug = strings.Trim(slug[:64], "-")
	}
	if slug == "" {
		slug = "untitled"
	}
	return slug
}
