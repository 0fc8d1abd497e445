package domain

import (
	"fmt"
	"strings"
)

// InvalidBriefError はブリーフから有効なプロジェクトを構成できない場合の回復不能な入力エラーです。
type InvalidBriefError struct {
	Reason string
}

func (e *InvalidBriefError) Error() string {
	return fmt.Sprintf("ブリーフが不正です: %s", e.Reason)
}

// PlanningContractViolation はプランナー側の応答が是正リトライ後も契約を満たさなかったことを表します。
// プロジェクトにとって致命的です。
type PlanningContractViolation struct {
	Reason  string
	Retries int
}

func (e *PlanningContractViolation) Error() string {
	return fmt.Sprintf("プランナー応答が契約に違反しています（是正リトライ %d 回消費）: %s", e.Retries, e.Reason)
}

// StyleLockFailure はスタイル参照画像の生成失敗を表します。
// スタイル参照なしにプロジェクトは進行できないため致命的です。
type StyleLockFailure struct {
	Err error
}

func (e *StyleLockFailure) Error() string {
	return fmt.Sprintf("スタイル参照画像の生成に失敗しました: %v", e.Err)
}

func (e *StyleLockFailure) Unwrap() error { return e.Err }

// CharacterLockFailure は特定キャラクターの参照画像が規定リトライ内で確定できなかったことを表します。
// すべてのキャラクターロックが揃わない限りプロジェクトは進行できません。
type CharacterLockFailure struct {
	Name     string
	Attempts int
	Err      error
}

func (e *CharacterLockFailure) Error() string {
	return fmt.Sprintf("キャラクター %q の参照画像生成に失敗しました（%d 回試行）: %v", e.Name, e.Attempts, e.Err)
}

func (e *CharacterLockFailure) Unwrap() error { return e.Err }

// RenderServiceError は外部画像生成サービスのページ単位の失敗を表します。
// プロジェクト全体ではなく当該ページの RenderResult に記録されます。
type RenderServiceError struct {
	PageIndex int
	Attempt   int
	Err       error
}

func (e *RenderServiceError) Error() string {
	return fmt.Sprintf("ページ %d のレンダリングに失敗しました（試行 %d 回目）: %v", e.PageIndex, e.Attempt, e.Err)
}

func (e *RenderServiceError) Unwrap() error { return e.Err }

// IncompleteStoryError は pass でないページが残ったままのエクスポート要求を拒否するエラーです。
// 失敗ページ番号を必ず列挙し、黙ってスキップすることはありません。
type IncompleteStoryError struct {
	Slug        string
	FailedPages []int
}

func (e *IncompleteStoryError) Error() string {
	pages := make([]string, len(e.FailedPages))
	for i, p := range e.FailedPages {
		pages[i] = fmt.Sprintf("%d", p)
	}
	return fmt.Sprintf("プロジェクト %q は未完成のためエクスポートできません（未了ページ: %s）",
		e.Slug, strings.Join(pages, ", "))
}
