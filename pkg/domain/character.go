package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// Character は物語に登場するキャラクターの視覚的アイデンティティを保持します。
// VisualTag はこのキャラクターに言及するすべてのプロンプトへ注入される短い正準記述です。
// ReferenceURL / FileURI はスタイルロック時に一度だけ設定され、以後再割り当てされません。
type Character struct {
	Name         string `json:"name"`
	VisualTag    string `json:"visual_tag"`
	ReferenceURL string `json:"reference_url,omitempty"`
	FileURI      string `json:"file_uri,omitempty"`
	Seed         int64  `json:"seed"`
}

// NewCharacter は名前と視覚タグからキャラクターを生成します。
// Seed が未指定（0）の場合は名前から決定論的に導出します。
func NewCharacter(name, visualTag string) Character {
	return Character{
		Name:      name,
		VisualTag: visualTag,
		Seed:      int64(SeedFromName(name)),
	}
}

// Locked は参照画像が確定済みかどうかを返します。
func (c Character) Locked() bool {
	return c.ReferenceURL != ""
}

// String はログ出力用の短い表現を返します。
func (c Character) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.VisualTag)
}

// SeedFromName は名前から決定論的なシード値を生成します。
// ハッシュの先頭4バイトを用い、最上位ビットを落として正の値に揃えます。
func SeedFromName(name string) int32 {
	hash := sha256.Sum256([]byte(strings.ToLower(name)))
	seed := int32(binary.BigEndian.Uint32(hash[:4]))
	return seed & 0x7FFFFFFF
}

// UniqueCharacterNames はアウトライン全体から重複のないキャラクター名を
// 初出順で抽出します。
func UniqueCharacterNames(outline []PageOutline) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, page := range outline {
		for _, name := range page.Characters {
			key := strings.ToLower(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}
