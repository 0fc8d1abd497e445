package export

import (
	"fmt"
	"log/slog"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"
)

// Assemble はプロジェクトの全ステージ成果を最終 StoryRecord へ集約します。
// 前提条件は「全ページの判定が pass」です。満たさない場合は失敗ページを
// 列挙した IncompleteStoryError を返し、部分的なエクスポートは行いません。
func Assemble(project *domain.Project) (*domain.StoryRecord, error) {
	if len(project.Outline) == 0 {
		return nil, fmt.Errorf("アウトラインが未設定のためエクスポートできません: %s", project.Slug)
	}
	if project.Style == nil {
		return nil, fmt.Errorf("スタイル参照が未設定のためエクスポートできません: %s", project.Slug)
	}

	record := &domain.StoryRecord{
		Slug:            project.Slug,
		Title:           project.Title,
		Audience:        project.Audience,
		StyleDescriptor: project.StyleDescriptor,
		Style:           *project.Style,
		Characters:      project.Characters,
	}

	for _, outline := range project.Outline {
		page := domain.StoryPage{
			Outline: outline,
			Spec:    specForPage(project, outline),
		}
		if result := project.ResultForPage(outline.Index); result != nil {
			page.Result = *result
		} else {
			// レンダリングまで到達しなかったページも失敗として明示します。
			page.Result = domain.RenderResult{
				PageIndex:     outline.Index,
				Verdict:       domain.VerdictFailed,
				FailureReason: "レンダリング結果がありません",
			}
		}
		record.Pages = append(record.Pages, page)
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	slog.Info("最終成果物を集約しました",
		"slug", record.Slug, "title", record.Title, "pages", len(record.Pages))
	return record, nil
}

func specForPage(project *domain.Project, outline domain.PageOutline) domain.ArtSpec {
	for _, spec := range project.Specs {
		if spec.PageIndex == outline.Index {
			return spec
		}
	}
	return domain.ArtSpec{PageIndex: outline.Index, Outline: outline}
}
