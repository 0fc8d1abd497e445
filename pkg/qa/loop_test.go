package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"
)

// fakeEvaluator はページごとに用意した判定を順番に返すスタブです。
type fakeEvaluator struct {
	mu       sync.Mutex
	script   map[int][]Evaluation // ページ番号 -> 呼び出し順の判定
	calls    map[int]int
	specSeen map[int][]domain.ArtSpec
	err      error
}

func newFakeEvaluator(script map[int][]Evaluation) *fakeEvaluator {
	return &fakeEvaluator{
		script:   script,
		calls:    make(map[int]int),
		specSeen: make(map[int][]domain.ArtSpec),
	}
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, project *domain.Project, spec domain.ArtSpec, result domain.RenderResult) (*Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.specSeen[spec.PageIndex] = append(f.specSeen[spec.PageIndex], spec)
	idx := f.calls[spec.PageIndex]
	f.calls[spec.PageIndex]++

	script := f.script[spec.PageIndex]
	if idx >= len(script) {
		idx = len(script) - 1
	}
	if idx < 0 {
		return &Evaluation{Verdict: domain.VerdictPass}, nil
	}
	eval := script[idx]
	return &eval, nil
}

// fakeRenderer は再レンダリング要求を記録し、新しい pending 結果を返すスタブです。
type fakeRenderer struct {
	mu    sync.Mutex
	specs []domain.ArtSpec
	err   error
}

func (f *fakeRenderer) RenderPage(ctx context.Context, project *domain.Project, storyDir string, spec domain.ArtSpec) (*domain.RenderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.specs = append(f.specs, spec)
	return &domain.RenderResult{
		PageIndex:  spec.PageIndex,
		TraceID:    fmt.Sprintf("trace-%d-%d", spec.PageIndex, len(f.specs)),
		ImagePath:  fmt.Sprintf("stories/fox/images/page_%02d.png", spec.PageIndex),
		References: []string{"style.png"},
		Verdict:    domain.VerdictPending,
	}, nil
}

func (f *fakeRenderer) rerendersForPage(page int) []domain.ArtSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ArtSpec
	for _, spec := range f.specs {
		if spec.PageIndex == page {
			out = append(out, spec)
		}
	}
	return out
}

func newReviewableProject(pages int) *domain.Project {
	p := domain.NewProject("Fox and Owl", "children", pages, "watercolor illustration style")
	p.Style = &domain.StyleReference{Descriptor: p.StyleDescriptor, ImagePath: "style.png", FileURI: "files/style"}
	for i := 1; i <= pages; i++ {
		outline := domain.PageOutline{Index: i, SceneIntent: fmt.Sprintf("scene %d", i)}
		p.Outline = append(p.Outline, outline)
		p.Specs = append(p.Specs, domain.ArtSpec{PageIndex: i, Outline: outline})
		p.Results = append(p.Results, domain.RenderResult{
			PageIndex: i,
			TraceID:   fmt.Sprintf("trace-%d", i),
			ImagePath: fmt.Sprintf("stories/fox/images/page_%02d.png", i),
			Verdict:   domain.VerdictPending,
		})
	}
	return p
}

func TestLoop_Review(t *testing.T) {
	t.Run("全ページ通過で再レンダリングが発生しないこと", func(t *testing.T) {
		eval := newFakeEvaluator(map[int][]Evaluation{})
		renderer := &fakeRenderer{}
		project := newReviewableProject(3)

		if err := NewLoop(eval, renderer, 0).Review(context.Background(), project, "stories/fox"); err != nil {
			t.Fatalf("Review に失敗: %v", err)
		}
		for i := 1; i <= 3; i++ {
			if result := project.ResultForPage(i); result.Verdict != domain.VerdictPass {
				t.Errorf("ページ %d の判定が不正です: %s", i, result.Verdict)
			}
		}
		if len(renderer.specs) != 0 {
			t.Errorf("不要な再レンダリングが発生しました: %d 件", len(renderer.specs))
		}
	})

	t.Run("ドリフトが是正再レンダリングで回復すること", func(t *testing.T) {
		eval := newFakeEvaluator(map[int][]Evaluation{
			2: {
				{Verdict: domain.VerdictDrift, Deviations: []string{"fox with green scarf instead of blue scarf"}},
				{Verdict: domain.VerdictPass},
			},
		})
		renderer := &fakeRenderer{}
		project := newReviewableProject(3)

		if err := NewLoop(eval, renderer, 0).Review(context.Background(), project, "stories/fox"); err != nil {
			t.Fatalf("Review に失敗: %v", err)
		}

		result := project.ResultForPage(2)
		if result.Verdict != domain.VerdictPass {
			t.Errorf("是正後の判定が不正です: %s", result.Verdict)
		}
		if result.Retries != 1 {
			t.Errorf("消費リトライ数が不正です: %d", result.Retries)
		}

		rerenders := renderer.rerendersForPage(2)
		if len(rerenders) != 1 {
			t.Fatalf("再レンダリング回数が不正です: %d", len(rerenders))
		}
		found := false
		for _, constraint := range rerenders[0].NegativeConstraints {
			if strings.Contains(constraint, "green scarf") {
				found = true
			}
		}
		if !found {
			t.Errorf("逸脱点が否定制約として追記されていません: %v", rerenders[0].NegativeConstraints)
		}
	})

	t.Run("予算超過のページが failed へ確定すること", func(t *testing.T) {
		eval := newFakeEvaluator(map[int][]Evaluation{
			1: {{Verdict: domain.VerdictDrift, Deviations: []string{"style drift"}}},
		})
		renderer := &fakeRenderer{}
		project := newReviewableProject(1)

		if err := NewLoop(eval, renderer, 3).Review(context.Background(), project, "stories/fox"); err != nil {
			t.Fatalf("Review に失敗: %v", err)
		}

		result := project.ResultForPage(1)
		if result.Verdict != domain.VerdictFailed {
			t.Fatalf("予算超過後の判定が不正です: %s", result.Verdict)
		}
		if result.Retries != 2 {
			t.Errorf("消費リトライ数が不正です: %d", result.Retries)
		}
		if len(renderer.rerendersForPage(1)) != 2 {
			t.Errorf("再レンダリング回数が不正です: %d", len(renderer.rerendersForPage(1)))
		}
		if eval.calls[1] != 3 {
			t.Errorf("判定回数が不正です: %d", eval.calls[1])
		}
		if result.FailureReason == "" {
			t.Error("失敗理由が記録されていません")
		}
	})

	t.Run("3回連続ドリフトしたページが4回目の判定に進まないこと", func(t *testing.T) {
		// 4回目に通過する台本を与えても、3回目の連続ドリフトで failed が確定し
		// 4回目の判定自体が行われないこと。
		eval := newFakeEvaluator(map[int][]Evaluation{
			1: {
				{Verdict: domain.VerdictDrift, Deviations: []string{"style drift"}},
				{Verdict: domain.VerdictDrift, Deviations: []string{"style drift"}},
				{Verdict: domain.VerdictDrift, Deviations: []string{"style drift"}},
				{Verdict: domain.VerdictPass},
			},
		})
		renderer := &fakeRenderer{}
		project := newReviewableProject(1)

		if err := NewLoop(eval, renderer, 3).Review(context.Background(), project, "stories/fox"); err != nil {
			t.Fatalf("Review に失敗: %v", err)
		}
		if result := project.ResultForPage(1); result.Verdict != domain.VerdictFailed {
			t.Fatalf("3回連続ドリフト後の判定が不正です: %s", result.Verdict)
		}
		if eval.calls[1] != 3 {
			t.Errorf("判定回数が不正です: %d", eval.calls[1])
		}
	})

	t.Run("是正のたびに否定制約が蓄積されること", func(t *testing.T) {
		eval := newFakeEvaluator(map[int][]Evaluation{
			1: {
				{Verdict: domain.VerdictDrift, Deviations: []string{"first deviation"}},
				{Verdict: domain.VerdictDrift, Deviations: []string{"second deviation"}},
				{Verdict: domain.VerdictPass},
			},
		})
		renderer := &fakeRenderer{}
		project := newReviewableProject(1)

		if err := NewLoop(eval, renderer, 3).Review(context.Background(), project, "stories/fox"); err != nil {
			t.Fatalf("Review に失敗: %v", err)
		}
		rerenders := renderer.rerendersForPage(1)
		if len(rerenders) != 2 {
			t.Fatalf("再レンダリング回数が不正です: %d", len(rerenders))
		}
		second := rerenders[1].NegativeConstraints
		if len(second) != 2 {
			t.Errorf("否定制約が蓄積されていません: %v", second)
		}
	})

	t.Run("並行レビューで各ページの結果だけが更新されること", func(t *testing.T) {
		// 偶数ページだけ是正再レンダリングを挟み、並行レビュー中の書き込みが
		// 他ページの結果へ波及しないこと。
		script := make(map[int][]Evaluation)
		for i := 2; i <= 8; i += 2 {
			script[i] = []Evaluation{
				{Verdict: domain.VerdictDrift, Deviations: []string{fmt.Sprintf("deviation on page %d", i)}},
				{Verdict: domain.VerdictPass},
			}
		}
		eval := newFakeEvaluator(script)
		renderer := &fakeRenderer{}
		project := newReviewableProject(8)

		if err := NewLoop(eval, renderer, 3).Review(context.Background(), project, "stories/fox"); err != nil {
			t.Fatalf("Review に失敗: %v", err)
		}
		for i := 1; i <= 8; i++ {
			result := project.ResultForPage(i)
			if result.Verdict != domain.VerdictPass {
				t.Errorf("ページ %d の判定が不正です: %s", i, result.Verdict)
			}
			want := 0
			if i%2 == 0 {
				want = 1
			}
			if result.Retries != want {
				t.Errorf("ページ %d の消費リトライ数が不正です: %d", i, result.Retries)
			}
		}
	})

	t.Run("判定確定済みのページがスキップされること", func(t *testing.T) {
		eval := newFakeEvaluator(map[int][]Evaluation{})
		project := newReviewableProject(2)
		project.Results[0].Verdict = domain.VerdictFailed
		project.Results[0].FailureReason = "レンダリング失敗"

		if err := NewLoop(eval, &fakeRenderer{}, 0).Review(context.Background(), project, "stories/fox"); err != nil {
			t.Fatalf("Review に失敗: %v", err)
		}
		if eval.calls[1] != 0 {
			t.Errorf("failed 確定済みページが再判定されました: %d 回", eval.calls[1])
		}
		if project.Results[0].Verdict != domain.VerdictFailed {
			t.Error("確定済みの判定が書き換えられました")
		}
	})

	t.Run("再レンダリングのサービス失敗が failed として記録されること", func(t *testing.T) {
		eval := newFakeEvaluator(map[int][]Evaluation{
			1: {{Verdict: domain.VerdictDrift, Deviations: []string{"style drift"}}},
		})
		renderer := &fakeRenderer{err: &domain.RenderServiceError{PageIndex: 1, Attempt: 3, Err: errors.New("unavailable")}}
		project := newReviewableProject(1)

		if err := NewLoop(eval, renderer, 3).Review(context.Background(), project, "stories/fox"); err != nil {
			t.Fatalf("Review に失敗: %v", err)
		}
		if result := project.ResultForPage(1); result.Verdict != domain.VerdictFailed {
			t.Errorf("サービス失敗後の判定が不正です: %s", result.Verdict)
		}
	})

	t.Run("判定担当の基盤エラーが上位へ伝播すること", func(t *testing.T) {
		eval := newFakeEvaluator(map[int][]Evaluation{})
		eval.err = errors.New("evaluator unavailable")
		project := newReviewableProject(1)

		if err := NewLoop(eval, &fakeRenderer{}, 0).Review(context.Background(), project, "stories/fox"); err == nil {
			t.Fatal("基盤エラーでも Review が成功しました")
		}
	})
}
