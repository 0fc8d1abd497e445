package domain

import (
	"fmt"
	"strings"
)

// PageOutline はプランナーが返す1ページ分の構成案です。
// Index は1始まりの連番で、欠番や重複は許容されません。
type PageOutline struct {
	Index       int      `json:"index"`
	Text        string   `json:"text"`
	SceneIntent string   `json:"scene_intent"`
	Characters  []string `json:"characters"`
}

// ArtSpec は PageOutline から導出される描画指示書です。PageOutline と1対1で対応し、
// Outline フィールドで元の構成案を保持します。
type ArtSpec struct {
	PageIndex           int         `json:"page_index"`
	Outline             PageOutline `json:"outline"`
	Composition         string      `json:"composition"`
	Camera              string      `json:"camera"`
	Lighting            string      `json:"lighting"`
	Palette             string      `json:"palette"`
	NegativeConstraints []string    `json:"negative_constraints,omitempty"`
	Truncated           bool        `json:"truncated,omitempty"`
	Warnings            []string    `json:"warnings,omitempty"`
}

// Tighten はドリフト検出時の是正用に否定制約を追記した複製を返します。
// 元の ArtSpec は変更しません。
func (s ArtSpec) Tighten(constraints []string) ArtSpec {
	tightened := s
	tightened.NegativeConstraints = append(
		append([]string(nil), s.NegativeConstraints...), constraints...)
	return tightened
}

// ValidateOutline はアウトラインの構造的不変条件を検査します。
// ページ番号が 1..expected の連番であること、参照キャラクターがすべて
// roster に宣言済みであることを確認します。
func ValidateOutline(outline []PageOutline, expected int, roster []string) error {
	if len(outline) != expected {
		return fmt.Errorf("ページ数が一致しません: 要求 %d, 実際 %d", expected, len(outline))
	}

	declared := make(map[string]struct{}, len(roster))
	for _, name := range roster {
		declared[strings.ToLower(name)] = struct{}{}
	}

	for i, page := range outline {
		if page.Index != i+1 {
			return fmt.Errorf("ページ番号が連番ではありません: 位置 %d に index %d", i+1, page.Index)
		}
		for _, name := range page.Characters {
			if _, ok := declared[strings.ToLower(name)]; !ok {
				return fmt.Errorf("ページ %d が未宣言のキャラクター %q を参照しています", page.Index, name)
			}
		}
	}
	return nil
}
