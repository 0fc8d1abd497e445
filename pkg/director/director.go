package director

import (
	"fmt"
	"strings"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"
)

// DefaultMaxWords は1ページあたりの本文語数上限です。
// 絵本の見開きで読み聞かせられる分量に合わせています。
const DefaultMaxWords = 120

// Director はアウトラインの各ページを描画指示書（ArtSpec）へ変換します。
// 外部サービスを呼ばない純粋な変換で、同じ入力からは常に同じ指示書を返します。
type Director struct {
	maxWords int
}

// New は Director を初期化します。maxWords が 0 以下なら既定値を使います。
func New(maxWords int) *Director {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	return &Director{maxWords: maxWords}
}

// Direct はプロジェクトの全ページ分の ArtSpec を導出します。
// アウトラインが未設定の場合はエラーを返します。
func (d *Director) Direct(project *domain.Project) ([]domain.ArtSpec, error) {
	if len(project.Outline) == 0 {
		return nil, fmt.Errorf("アウトラインが未設定のため描画指示を導出できません: %s", project.Slug)
	}

	specs := make([]domain.ArtSpec, 0, len(project.Outline))
	for _, page := range project.Outline {
		specs = append(specs, d.directPage(page, project.StyleDescriptor))
	}
	return specs, nil
}

// directPage は1ページ分の指示書を導出します。
func (d *Director) directPage(page domain.PageOutline, styleDescriptor string) domain.ArtSpec {
	spec := domain.ArtSpec{
		PageIndex: page.Index,
		Outline:   page,
	}

	if truncated, ok := truncateWords(page.Text, d.maxWords); ok {
		spec.Outline.Text = truncated
		spec.Truncated = true
		spec.Warnings = append(spec.Warnings,
			fmt.Sprintf("ページ %d の本文が %d 語を超えたため切り詰めました", page.Index, d.maxWords))
	}

	intent := strings.ToLower(page.SceneIntent + " " + page.Text)
	spec.Composition = deriveComposition(page)
	spec.Camera = deriveCamera(page.Index, intent)
	spec.Lighting = deriveLighting(intent)
	spec.Palette = derivePalette(intent, styleDescriptor)
	return spec
}

// truncateWords は語数上限を超えた本文を切り詰めます。
// 切り詰めが発生した場合のみ true を返します。
func truncateWords(text string, maxWords int) (string, bool) {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text, false
	}
	return strings.Join(words[:maxWords], " "), true
}

// deriveComposition は登場キャラクター数からショット構成を決めます。
func deriveComposition(page domain.PageOutline) string {
	switch len(page.Characters) {
	case 0:
		return "environment-focused scene, no characters, strong sense of place"
	case 1:
		return fmt.Sprintf("single subject composition centered on %s, generous negative space", page.Characters[0])
	case 2:
		return fmt.Sprintf("two-shot composition with %s and %s interacting, balanced framing",
			page.Characters[0], page.Characters[1])
	default:
		return fmt.Sprintf("group scene with %s, clear spatial hierarchy", strings.Join(page.Characters, ", "))
	}
}

// deriveCamera はシーン意図のキーワードからカメラ指定を決めます。
// 手掛かりが無いページは奇数・偶数で引きと寄りを交互に使い、
// ページをめくるリズムを作ります。
func deriveCamera(index int, intent string) string {
	switch {
	case containsAny(intent, "journey", "travel", "landscape", "arrive", "forest", "mountain", "city"):
		return "wide establishing shot, eye level"
	case containsAny(intent, "discover", "find", "clue", "secret", "whisper"):
		return "close-up shot emphasizing facial expression and detail"
	case containsAny(intent, "fly", "soar", "above", "bird"):
		return "aerial view looking down"
	case containsAny(intent, "chase", "run", "race", "escape"):
		return "dynamic low angle with motion lines implied by posture"
	}
	if index%2 == 0 {
		return "medium shot, slightly low angle"
	}
	return "wide shot, eye level"
}

// deriveLighting はシーン意図のキーワードから照明指定を決めます。
func deriveLighting(intent string) string {
	switch {
	case containsAny(intent, "night", "moon", "star", "dark", "sleep"):
		return "soft moonlight with deep blue shadows"
	case containsAny(intent, "morning", "dawn", "wake", "sunrise"):
		return "warm golden morning light, long soft shadows"
	case containsAny(intent, "storm", "rain", "thunder"):
		return "dramatic overcast light with rain-diffused highlights"
	case containsAny(intent, "sunset", "evening", "dusk"):
		return "warm orange sunset glow"
	case containsAny(intent, "cave", "indoor", "inside", "house", "cozy"):
		return "warm interior lamplight, gentle falloff"
	}
	return "soft natural daylight, gentle ambient occlusion"
}

// derivePalette はシーンの気分と画風記述からパレット指定を決めます。
func derivePalette(intent, styleDescriptor string) string {
	var mood string
	switch {
	case containsAny(intent, "night", "moon", "mystery", "secret"):
		mood = "cool blues and violets with selective warm accents"
	case containsAny(intent, "happy", "celebrate", "friend", "laugh", "party"):
		mood = "bright cheerful primaries with warm highlights"
	case containsAny(intent, "sad", "lonely", "lost", "miss"):
		mood = "muted desaturated tones with a single warm focal color"
	case containsAny(intent, "autumn", "leaves", "harvest"):
		mood = "warm ambers, oranges and earthy browns"
	default:
		mood = "harmonious storybook palette with soft contrast"
	}
	if styleDescriptor == "" {
		return mood
	}
	return fmt.Sprintf("%s, consistent with %s", mood, styleDescriptor)
}

func containsAny(s string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}
