package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/asset"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/prompts"

	"github.com/google/uuid"
	imagedom "github.com/shouni/gemini-image-kit/pkg/domain"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	// DefaultConcurrency は同時にレンダリングするページ数の既定値です。
	DefaultConcurrency = 2

	// DefaultServiceRetries はページ生成失敗時の追加試行回数です。
	DefaultServiceRetries = 2

	// MaxReferencesPerRequest は1リクエストに添付できる参照画像の上限です。
	MaxReferencesPerRequest = 10

	// 絵本の縦長ページに合わせたアスペクト比です。
	pageAspectRatio = "3:4"
)

// PageGenerator はページ画像生成に使う画像生成サービスの最小契約です。
type PageGenerator interface {
	GenerateMangaPage(ctx context.Context, req imagedom.ImagePageRequest) (*imagedom.ImageResponse, error)
}

// ArtifactWriter は生成画像の永続化先です。
type ArtifactWriter interface {
	Write(ctx context.Context, path string, r io.Reader, mime string) error
}

// Coordinator は全ページのレンダリングを統括します。
// 各リクエストにはスタイル参照・登場キャラクター参照を必ず束ねて渡し、
// プロセス全体のセマフォとレートリミッターで外部サービスへの負荷を制限します。
type Coordinator struct {
	gen           PageGenerator
	writer        ArtifactWriter
	promptBuilder *prompts.ImagePromptBuilder
	limiter       *rate.Limiter
	sem           *semaphore.Weighted
	retries       int

	mu sync.Mutex // project.Results への並行アクセスを保護します
}

// New は依存関係を注入して Coordinator を初期化します。
// concurrency と retries が 0 以下なら既定値を使います。
func New(gen PageGenerator, writer ArtifactWriter, pb *prompts.ImagePromptBuilder, limiter *rate.Limiter, concurrency int64, retries int) *Coordinator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if retries <= 0 {
		retries = DefaultServiceRetries
	}
	return &Coordinator{
		gen:           gen,
		writer:        writer,
		promptBuilder: pb,
		limiter:       limiter,
		sem:           semaphore.NewWeighted(concurrency),
		retries:       retries,
	}
}

// RenderAll はプロジェクトの全ページをレンダリングし、結果を Results へ記録します。
// 連続性モードでは前ページの画像を参照へ加えるため順次処理し、
// それ以外はページが独立なので並列に処理します。
// サービス起因のページ失敗（RenderServiceError）は当該ページを failed として
// 記録したうえで残りのページを続行します。
func (c *Coordinator) RenderAll(ctx context.Context, project *domain.Project, storyDir string) error {
	if len(project.Specs) == 0 {
		return fmt.Errorf("描画指示が未設定のためレンダリングできません: %s", project.Slug)
	}

	if project.Continuity {
		for _, spec := range project.Specs {
			if err := c.renderInto(ctx, project, storyDir, spec); err != nil {
				return err
			}
		}
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, spec := range project.Specs {
		eg.Go(func() error {
			return c.renderInto(egCtx, project, storyDir, spec)
		})
	}
	return eg.Wait()
}

// renderInto は1ページをレンダリングして Results へ記録します。
// レンダリング済みのページはスキップします（再開時の冪等性のため）。
func (c *Coordinator) renderInto(ctx context.Context, project *domain.Project, storyDir string, spec domain.ArtSpec) error {
	if existing, ok := c.existingResult(project, spec.PageIndex); ok {
		slog.Info("レンダリング済みのページをスキップします",
			"slug", project.Slug, "page", spec.PageIndex, "verdict", existing.Verdict)
		return nil
	}

	result, err := c.RenderPage(ctx, project, storyDir, spec)
	if err != nil {
		var svcErr *domain.RenderServiceError
		if errors.As(err, &svcErr) {
			c.storeResult(project, domain.RenderResult{
				PageIndex:     spec.PageIndex,
				TraceID:       uuid.NewString(),
				Verdict:       domain.VerdictFailed,
				FailureReason: svcErr.Error(),
			})
			slog.Error("ページのレンダリングを断念しました",
				"slug", project.Slug, "page", spec.PageIndex, "error", svcErr)
			return nil
		}
		return err
	}

	c.storeResult(project, *result)
	return nil
}

// RenderPage は1ページをレンダリングし、QA 判定待ち（pending）の結果を返します。
// 外部サービスの失敗は規定リトライ後に RenderServiceError となります。
// QA ループからの再レンダリングにもこのメソッドを使います。
func (c *Coordinator) RenderPage(ctx context.Context, project *domain.Project, storyDir string, spec domain.ArtSpec) (*domain.RenderResult, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("レンダリングスロットの獲得に失敗しました: %w", err)
	}
	defer c.sem.Release(1)

	refs, chars, err := c.assembleReferences(project, spec)
	if err != nil {
		return nil, err
	}

	userPrompt, systemPrompt := c.promptBuilder.BuildPagePrompt(spec, chars, refs)
	negativePrompt := c.promptBuilder.BuildNegativePrompt(spec)

	refURLs := make([]string, len(refs))
	for i, ref := range refs {
		refURLs[i] = ref.Path
	}

	// ページごとに決定論的なシードを使い、再レンダリング時の再現性を確保します。
	seed := int64(domain.SeedFromName(fmt.Sprintf("%s/page-%d", project.Slug, spec.PageIndex)))
	traceID := uuid.NewString()

	maxAttempts := 1 + c.retries
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &domain.RenderServiceError{PageIndex: spec.PageIndex, Attempt: attempt, Err: err}
		}

		slog.Info("ページをレンダリングします",
			"slug", project.Slug, "page", spec.PageIndex,
			"trace_id", traceID, "attempt", attempt, "references", len(refURLs))

		resp, genErr := c.gen.GenerateMangaPage(ctx, imagedom.ImagePageRequest{
			Prompt:         userPrompt,
			NegativePrompt: negativePrompt,
			SystemPrompt:   systemPrompt,
			Seed:           &seed,
			ReferenceURLs:  refURLs,
			AspectRatio:    pageAspectRatio,
		})
		if genErr != nil {
			lastErr = genErr
			slog.Warn("ページのレンダリングに失敗しました",
				"slug", project.Slug, "page", spec.PageIndex, "attempt", attempt, "error", genErr)
			if ctx.Err() != nil {
				return nil, &domain.RenderServiceError{PageIndex: spec.PageIndex, Attempt: attempt, Err: ctx.Err()}
			}
			continue
		}

		pagePath, err := asset.PagePath(storyDir, spec.PageIndex)
		if err != nil {
			return nil, err
		}
		if err := c.writer.Write(ctx, pagePath, bytes.NewReader(resp.Data), resp.MimeType); err != nil {
			return nil, fmt.Errorf("ページ %d の画像保存に失敗しました: %w", spec.PageIndex, err)
		}

		return &domain.RenderResult{
			PageIndex:  spec.PageIndex,
			TraceID:    traceID,
			ImagePath:  pagePath,
			MimeType:   resp.MimeType,
			UsedSeed:   resp.UsedSeed,
			References: refURLs,
			Verdict:    domain.VerdictPending,
		}, nil
	}

	return nil, &domain.RenderServiceError{PageIndex: spec.PageIndex, Attempt: maxAttempts, Err: lastErr}
}

// assembleReferences はページのレンダリングに渡す参照画像を決定します。
// スタイル参照を先頭に、登場キャラクターの参照を続け、連続性モードでは
// 直前ページの画像を最後に加えます。上限を超える参照は後方から切り捨てます。
func (c *Coordinator) assembleReferences(project *domain.Project, spec domain.ArtSpec) ([]prompts.ReferenceRole, []domain.Character, error) {
	if project.Style == nil || project.Style.ImagePath == "" {
		return nil, nil, &domain.StyleLockFailure{
			Err: fmt.Errorf("ページ %d のレンダリング時にスタイル参照が未設定です", spec.PageIndex),
		}
	}

	refs := []prompts.ReferenceRole{
		{Path: project.Style.ImagePath, Role: "art style reference, match palette / line quality / rendering exactly"},
	}

	chars := make([]domain.Character, 0, len(spec.Outline.Characters))
	for _, name := range spec.Outline.Characters {
		char := project.FindCharacter(name)
		if char == nil || !char.Locked() {
			return nil, nil, &domain.CharacterLockFailure{
				Name: name,
				Err:  fmt.Errorf("ページ %d が参照するキャラクターがロックされていません", spec.PageIndex),
			}
		}
		chars = append(chars, *char)
		refs = append(refs, prompts.ReferenceRole{
			Path: char.ReferenceURL,
			Role: fmt.Sprintf("character reference for %s, keep identity identical", char.Name),
		})
	}

	if project.Continuity && spec.PageIndex > 1 {
		if prev := project.ResultForPage(spec.PageIndex - 1); prev != nil && prev.ImagePath != "" {
			refs = append(refs, prompts.ReferenceRole{
				Path: prev.ImagePath,
				Role: "previous page, maintain scene and costume continuity",
			})
		}
	}

	if len(refs) > MaxReferencesPerRequest {
		slog.Warn("参照画像が上限を超えたため切り捨てます",
			"page", spec.PageIndex, "total", len(refs), "limit", MaxReferencesPerRequest)
		refs = refs[:MaxReferencesPerRequest]
	}
	return refs, chars, nil
}

// existingResult は Results から該当ページの結果を複製して返します。
// 並行レンダリング中は storeResult の追記でスライスが再確保されうるため、
// 読み取りも同じミューテックスで直列化します。
func (c *Coordinator) existingResult(project *domain.Project, page int) (domain.RenderResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if result := project.ResultForPage(page); result != nil {
		return *result, true
	}
	return domain.RenderResult{}, false
}

// storeResult は結果を Results へ追記または置換します。並行呼び出しに対して安全です。
func (c *Coordinator) storeResult(project *domain.Project, result domain.RenderResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range project.Results {
		if project.Results[i].PageIndex == result.PageIndex {
			project.Results[i] = result
			return
		}
	}
	project.Results = append(project.Results, result)
}
