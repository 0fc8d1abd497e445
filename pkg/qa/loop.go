package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"

	"golang.org/x/sync/errgroup"
)

// DefaultRetryBudget は1ページに許容する連続ドリフト判定の上限です。
// 上限に達したページは是正を打ち切り failed へ確定します。
const DefaultRetryBudget = 3

// Renderer はドリフト是正時の再レンダリングに使う契約です。
type Renderer interface {
	RenderPage(ctx context.Context, project *domain.Project, storyDir string, spec domain.ArtSpec) (*domain.RenderResult, error)
}

// Loop は全ページの整合性判定と是正再レンダリングを統括します。
// ドリフトが検出されたページは指示書に逸脱点由来の否定制約を追記したうえで
// 同じ参照画像セットで再レンダリングし、ドリフトが budget 回連続したページは
// failed へ確定させます。pass / failed が確定済みのページには作用しません。
type Loop struct {
	evaluator DriftEvaluator
	renderer  Renderer
	budget    int
}

// NewLoop は Loop を初期化します。budget が 0 以下なら既定値を使います。
func NewLoop(evaluator DriftEvaluator, renderer Renderer, budget int) *Loop {
	if budget <= 0 {
		budget = DefaultRetryBudget
	}
	return &Loop{
		evaluator: evaluator,
		renderer:  renderer,
		budget:    budget,
	}
}

// Review はプロジェクトの全ページを判定し、Results の Verdict を確定させます。
// 連続性モードでは前ページの画像が参照に入るため順次処理します。
func (l *Loop) Review(ctx context.Context, project *domain.Project, storyDir string) error {
	// 各ページの結果参照は並行レビューを開始する前に解決しておきます。
	// 以降は各ゴルーチンが自分のページの要素だけに触れるため、
	// Results 全体を走査する必要がなくなります。
	results := make([]*domain.RenderResult, len(project.Specs))
	for i := range project.Specs {
		spec := project.Specs[i]
		result := project.ResultForPage(spec.PageIndex)
		if result == nil {
			return fmt.Errorf("ページ %d のレンダリング結果がないため整合性判定できません", spec.PageIndex)
		}
		results[i] = result
	}

	if project.Continuity {
		for i := range project.Specs {
			if err := l.reviewPage(ctx, project, storyDir, i, results[i]); err != nil {
				return err
			}
		}
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for i := range project.Specs {
		eg.Go(func() error {
			return l.reviewPage(egCtx, project, storyDir, i, results[i])
		})
	}
	return eg.Wait()
}

// reviewPage は1ページ分の判定・是正サイクルを回します。
// result は当該ページの Results 要素を指し、書き込みはこの要素に限られます。
func (l *Loop) reviewPage(ctx context.Context, project *domain.Project, storyDir string, specIdx int, result *domain.RenderResult) error {
	spec := project.Specs[specIdx]
	if result.Verdict.Terminal() {
		slog.Info("判定確定済みのページをスキップします",
			"slug", project.Slug, "page", spec.PageIndex, "verdict", result.Verdict)
		return nil
	}

	for {
		eval, err := l.evaluator.Evaluate(ctx, project, spec, *result)
		if err != nil {
			return fmt.Errorf("ページ %d の整合性判定に失敗しました: %w", spec.PageIndex, err)
		}

		if eval.Verdict == domain.VerdictPass {
			result.Verdict = domain.VerdictPass
			slog.Info("ページが整合性判定を通過しました",
				"slug", project.Slug, "page", spec.PageIndex, "retries", result.Retries)
			return nil
		}

		// Retries は実施済みの是正再レンダリング数なので、今回のドリフトは
		// Retries+1 回目の連続ドリフトにあたります。
		if result.Retries+1 >= l.budget {
			result.Verdict = domain.VerdictFailed
			result.FailureReason = fmt.Sprintf(
				"ドリフトが %d 回連続で検出されたため是正を打ち切りました: %v", l.budget, eval.Deviations)
			slog.Error("ページのドリフトを解消できませんでした",
				"slug", project.Slug, "page", spec.PageIndex, "deviations", eval.Deviations)
			return nil
		}

		result.Retries++
		result.Verdict = domain.VerdictDrift
		spec = spec.Tighten(eval.Deviations)
		project.Specs[specIdx] = spec

		slog.Warn("ドリフトを検出したため是正再レンダリングを行います",
			"slug", project.Slug, "page", spec.PageIndex,
			"retry", result.Retries, "budget", l.budget, "deviations", eval.Deviations)

		rendered, err := l.renderer.RenderPage(ctx, project, storyDir, spec)
		if err != nil {
			var svcErr *domain.RenderServiceError
			if errors.As(err, &svcErr) {
				result.Verdict = domain.VerdictFailed
				result.FailureReason = svcErr.Error()
				return nil
			}
			return err
		}

		// 再レンダリング結果で差し替えつつ、消費済みリトライ数は引き継ぎます。
		retries := result.Retries
		*result = *rendered
		result.Retries = retries
	}
}
