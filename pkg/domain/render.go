package domain

import (
	"fmt"
	"sort"
)

// Verdict は QA ループにおけるページ単位の判定結果です。
type Verdict string

const (
	VerdictPending Verdict = "pending"
	VerdictPass    Verdict = "pass"
	VerdictDrift   Verdict = "drift"
	VerdictFailed  Verdict = "failed"
)

// Terminal は判定がページにとって終端（pass / failed）かどうかを返します。
func (v Verdict) Terminal() bool {
	return v == VerdictPass || v == VerdictFailed
}

// RenderResult は1ページ分のレンダリング結果と QA 状態を保持します。
// References には生成時に実際へ渡した参照画像のパスを渡した順で記録します。
type RenderResult struct {
	PageIndex     int      `json:"page_index"`
	TraceID       string   `json:"trace_id"`
	ImagePath     string   `json:"image_path,omitempty"`
	MimeType      string   `json:"mime_type,omitempty"`
	UsedSeed      int64    `json:"used_seed,omitempty"`
	References    []string `json:"references"`
	Verdict       Verdict  `json:"verdict"`
	Retries       int      `json:"retries"`
	FailureReason string   `json:"failure_reason,omitempty"`
}

// StoryPage は最終成果物の1ページ分（構成案・描画指示・結果）の組です。
type StoryPage struct {
	Outline PageOutline  `json:"outline"`
	Spec    ArtSpec      `json:"spec"`
	Result  RenderResult `json:"result"`
}

// StoryRecord はエクスポート直前の最終集約です。ページ番号は 1..N の連番で、
// 全ページの判定が pass であることが前提条件です。
type StoryRecord struct {
	Slug            string         `json:"slug"`
	Title           string         `json:"title"`
	Audience        string         `json:"audience,omitempty"`
	StyleDescriptor string         `json:"style_descriptor"`
	Style           StyleReference `json:"style"`
	Characters      []Character    `json:"characters"`
	Pages           []StoryPage    `json:"pages"`
}

// Validate は StoryRecord の不変条件を検査します。
// ページ番号が 1..N の連番で欠番・重複がなく、全判定が pass であることを確認します。
func (r StoryRecord) Validate() error {
	seen := make(map[int]struct{}, len(r.Pages))
	var failed []int
	for _, page := range r.Pages {
		if _, dup := seen[page.Result.PageIndex]; dup {
			return fmt.Errorf("ページ番号 %d が重複しています", page.Result.PageIndex)
		}
		seen[page.Result.PageIndex] = struct{}{}
		if page.Result.Verdict != VerdictPass {
			failed = append(failed, page.Result.PageIndex)
		}
	}
	for i := 1; i <= len(r.Pages); i++ {
		if _, ok := seen[i]; !ok {
			return fmt.Errorf("ページ番号 %d が欠落しています", i)
		}
	}
	if len(failed) > 0 {
		sort.Ints(failed)
		return &IncompleteStoryError{Slug: r.Slug, FailedPages: failed}
	}
	return nil
}
