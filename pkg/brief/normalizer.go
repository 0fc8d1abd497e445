package brief

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"
)

// デフォルト値の定義です。
const (
	DefaultPageCount = 5
	DefaultAudience  = "children"
	DefaultStyle     = "soft watercolor storybook illustration, warm colors, gentle lighting"
)

var (
	pageCountRegex   = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(?:pages?|p[áa]ginas?)\b`)
	sourceURLRegex   = regexp.MustCompile(`https?://\S+`)
	audienceRegex    = regexp.MustCompile(`(?i)\bfor\s+(toddlers|kids|children|teens|adults)\b`)
	stylePhraseRegex = regexp.MustCompile(`(?i)\bin\s+([\w\s-]+?)\s+style\b`)
	leadingPairRegex = regexp.MustCompile(`(?i)^(?:the\s+)?([A-Za-z][\w'-]*)\s+and\s+(?:the\s+)?([A-Za-z][\w'-]*)\b`)
)

// knownStyles はブリーフ本文から直接拾う画風キーワードです。
var knownStyles = []string{
	"watercolor", "oil painting", "pixel art", "anime", "manga",
	"crayon", "pastel", "pencil sketch", "paper cutout", "claymation",
}

// Options はブリーフ本文を上書きする明示指定フィールドです。
// ゼロ値のフィールドは本文からの推定に委ねられます。
type Options struct {
	Title      string
	Audience   string
	PageCount  int
	Style      string
	SourceURL  string
	Characters []string
	Continuity bool
}

// Normalize は自由形式のブリーフを検証済みの Project スケルトンへ変換します。
// 推定可能なトピックが存在しない場合や、ページ数が許容範囲
// （1〜50）を外れる場合は InvalidBriefError を返します。
func Normalize(text string, opts Options) (*domain.Project, error) {
	text = strings.TrimSpace(text)
	if text == "" && opts.Title == "" {
		return nil, &domain.InvalidBriefError{Reason: "トピックが空です"}
	}

	pageCount := opts.PageCount
	if pageCount == 0 {
		pageCount = DefaultPageCount
		if m := pageCountRegex.FindStringSubmatch(text); m != nil {
			// 正規表現で数字のみ捕捉済みのため Atoi は失敗しません
			pageCount, _ = strconv.Atoi(m[1])
		}
	}
	if pageCount < domain.MinPageCount || pageCount > domain.MaxPageCount {
		return nil, &domain.InvalidBriefError{
			Reason: "ページ数 " + strconv.Itoa(pageCount) + " は許容範囲（" +
				strconv.Itoa(domain.MinPageCount) + "〜" + strconv.Itoa(domain.MaxPageCount) + "）を外れています",
		}
	}

	style := opts.Style
	if style == "" {
		style = inferStyle(text)
	}

	audience := opts.Audience
	if audience == "" {
		audience = DefaultAudience
		if m := audienceRegex.FindStringSubmatch(text); m != nil {
			audience = strings.ToLower(m[1])
		}
	}

	sourceURL := opts.SourceURL
	if sourceURL == "" {
		sourceURL = sourceURLRegex.FindString(text)
	}

	title := opts.Title
	if title == "" {
		title = deriveTitle(text)
	}
	if domain.Slugify(title) == "untitled" && opts.Title == "" {
		return nil, &domain.InvalidBriefError{Reason: "ブリーフからトピックを推定できませんでした"}
	}

	project := domain.NewProject(title, audience, pageCount, style)
	project.SourceURL = sourceURL
	project.Continuity = opts.Continuity

	for _, name := range characterHints(text, opts.Characters) {
		project.Characters = append(project.Characters, domain.NewCharacter(name, ""))
	}

	return project, nil
}

// inferStyle は本文から画風記述を推定します。見つからなければデフォルトの画風を返します。
func inferStyle(text string) string {
	lower := strings.ToLower(text)
	if m := stylePhraseRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(strings.ToLower(m[1])) + " illustration style"
	}
	for _, style := range knownStyles {
		if strings.Contains(lower, style) {
			return style + " illustration style"
		}
	}
	return DefaultStyle
}

// deriveTitle はページ数指定や URL を取り除いた本文をタイトルとして採用します。
func deriveTitle(text string) string {
	title := pageCountRegex.ReplaceAllString(text, "")
	title = sourceURLRegex.ReplaceAllString(title, "")
	title = strings.Trim(title, " ,.;:-")
	// バイト位置で切るとマルチバイト文字が壊れるため、ルーン単位で切り詰めます。
	if runes := []rune(title); len(runes) > 80 {
		title = strings.TrimSpace(string(runes[:80]))
	}
	return title
}

// characterHints は明示指定を優先しつつ、「Fox and Owl ...」のような
// 冒頭のペア表現から主要キャラクター名を推定します。
func characterHints(text string, explicit []string) []string {
	if len(explicit) > 0 {
		return explicit
	}
	m := leadingPairRegex.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	first := capitalize(m[1])
	second := capitalize(m[2])
	if strings.EqualFold(first, second) {
		return []string{first}
	}
	return []string{first, second}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
