package workflow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/brief"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/publisher"
)

// stageLog はステージの実行順を記録する共有ログです。
type stageLog struct {
	calls []string
}

func (l *stageLog) record(stage string) {
	l.calls = append(l.calls, stage)
}

type fakePlanner struct {
	log *stageLog
	err error
}

func (f *fakePlanner) Plan(ctx context.Context, project *domain.Project) error {
	f.log.record("plan")
	if f.err != nil {
		return f.err
	}
	for i := 1; i <= project.PageCount; i++ {
		project.Outline = append(project.Outline, domain.PageOutline{
			Index:       i,
			Text:        fmt.Sprintf("page %d", i),
			SceneIntent: fmt.Sprintf("scene %d", i),
			Characters:  []string{"Fox"},
		})
	}
	if project.FindCharacter("Fox") == nil {
		project.Characters = append(project.Characters, domain.NewCharacter("Fox", "red fox, blue scarf"))
	}
	return nil
}

type fakeLocker struct {
	log *stageLog
	err error
}

func (f *fakeLocker) Lock(ctx context.Context, project *domain.Project, storyDir string) error {
	f.log.record("lock")
	if f.err != nil {
		return f.err
	}
	project.Style = &domain.StyleReference{Descriptor: project.StyleDescriptor, ImagePath: "style.png", FileURI: "files/style"}
	for i := range project.Characters {
		project.Characters[i].ReferenceURL = "character.png"
		project.Characters[i].FileURI = "files/character"
	}
	return nil
}

type fakeDirector struct {
	log *stageLog
}

func (f *fakeDirector) Direct(project *domain.Project) ([]domain.ArtSpec, error) {
	f.log.record("direct")
	specs := make([]domain.ArtSpec, 0, len(project.Outline))
	for _, outline := range project.Outline {
		specs = append(specs, domain.ArtSpec{PageIndex: outline.Index, Outline: outline})
	}
	return specs, nil
}

type fakeRenderStage struct {
	log *stageLog
	err error
}

func (f *fakeRenderStage) RenderAll(ctx context.Context, project *domain.Project, storyDir string) error {
	f.log.record("render")
	if f.err != nil {
		return f.err
	}
	for _, spec := range project.Specs {
		project.Results = append(project.Results, domain.RenderResult{
			PageIndex: spec.PageIndex,
			TraceID:   fmt.Sprintf("trace-%d", spec.PageIndex),
			ImagePath: fmt.Sprintf("images/page_%02d.png", spec.PageIndex),
			Verdict:   domain.VerdictPending,
		})
	}
	return nil
}

type fakeReviewer struct {
	log       *stageLog
	failPages []int
}

func (f *fakeReviewer) Review(ctx context.Context, project *domain.Project, storyDir string) error {
	f.log.record("review")
	for i := range project.Results {
		verdict := domain.VerdictPass
		for _, page := range f.failPages {
			if project.Results[i].PageIndex == page {
				verdict = domain.VerdictFailed
			}
		}
		project.Results[i].Verdict = verdict
	}
	return nil
}

type fakePublisher struct {
	log    *stageLog
	record *domain.StoryRecord
}

func (f *fakePublisher) Publish(ctx context.Context, record *domain.StoryRecord, storyDir string) (publisher.PublishResult, error) {
	f.log.record("publish")
	f.record = record
	return publisher.PublishResult{
		DataPath: storyDir + "/story_data.json",
		HTMLPath: storyDir + "/storybook.html",
	}, nil
}

type fakeSnapshotter struct {
	states []domain.ProjectState
}

func (f *fakeSnapshotter) Snapshot(ctx context.Context, project *domain.Project, storyDir string) {
	f.states = append(f.states, project.State)
}

type engineFixture struct {
	log         *stageLog
	planner     *fakePlanner
	locker      *fakeLocker
	renderer    *fakeRenderStage
	reviewer    *fakeReviewer
	publisher   *fakePublisher
	snapshotter *fakeSnapshotter
	engine      *Engine
}

func newEngineFixture() *engineFixture {
	log := &stageLog{}
	f := &engineFixture{
		log:         log,
		planner:     &fakePlanner{log: log},
		locker:      &fakeLocker{log: log},
		renderer:    &fakeRenderStage{log: log},
		reviewer:    &fakeReviewer{log: log},
		publisher:   &fakePublisher{log: log},
		snapshotter: &fakeSnapshotter{},
	}
	f.engine = NewEngine(EngineArgs{
		Planner:     f.planner,
		Locker:      f.locker,
		Director:    &fakeDirector{log: log},
		Renderer:    f.renderer,
		Reviewer:    f.reviewer,
		Publisher:   f.publisher,
		Snapshotter: f.snapshotter,
		BaseDir:     "stories",
	})
	return f
}

func newEngineProject(t *testing.T) *domain.Project {
	t.Helper()
	project, err := brief.Normalize("fox and owl solve mysteries, watercolor, 5 pages", brief.Options{})
	if err != nil {
		t.Fatalf("ブリーフ正規化に失敗: %v", err)
	}
	return project
}

func TestEngine_Run(t *testing.T) {
	t.Run("全ステージが順に実行され exported で完了すること", func(t *testing.T) {
		f := newEngineFixture()
		project := newEngineProject(t)

		result, err := f.engine.Run(context.Background(), project)
		if err != nil {
			t.Fatalf("Run に失敗: %v", err)
		}
		if project.State != domain.StateExported {
			t.Errorf("最終状態が不正です: %s", project.State)
		}
		if result == nil || result.HTMLPath == "" {
			t.Errorf("エクスポート結果が不完全です: %+v", result)
		}

		wantOrder := []string{"plan", "lock", "direct", "render", "review", "publish"}
		if !reflect.DeepEqual(f.log.calls, wantOrder) {
			t.Errorf("ステージの実行順が不正です: %v", f.log.calls)
		}

		wantStates := []domain.ProjectState{
			domain.StateStyling, domain.StateDraftingArt,
			domain.StateRendering, domain.StateQA, domain.StateExported,
		}
		if !reflect.DeepEqual(f.snapshotter.states, wantStates) {
			t.Errorf("スナップショットの状態列が不正です: %v", f.snapshotter.states)
		}

		if f.publisher.record == nil || len(f.publisher.record.Pages) != 5 {
			t.Errorf("パブリッシュされたレコードが不正です: %+v", f.publisher.record)
		}
	})

	t.Run("プランニング失敗で後続ステージが実行されないこと", func(t *testing.T) {
		f := newEngineFixture()
		f.planner.err = &domain.PlanningContractViolation{Reason: "ページ数不一致", Retries: 1}
		project := newEngineProject(t)

		_, err := f.engine.Run(context.Background(), project)
		var violation *domain.PlanningContractViolation
		if !errors.As(err, &violation) {
			t.Fatalf("PlanningContractViolation が返りませんでした: %v", err)
		}
		if project.State != domain.StateFailed || project.FailureStage != domain.StatePlanning {
			t.Errorf("失敗状態の記録が不正です: state=%s stage=%s", project.State, project.FailureStage)
		}
		if !reflect.DeepEqual(f.log.calls, []string{"plan"}) {
			t.Errorf("後続ステージが実行されています: %v", f.log.calls)
		}
		if len(f.snapshotter.states) != 1 || f.snapshotter.states[0] != domain.StateFailed {
			t.Errorf("失敗スナップショットが保存されていません: %v", f.snapshotter.states)
		}
	})

	t.Run("スタイルロック失敗が styling ステージとして記録されること", func(t *testing.T) {
		f := newEngineFixture()
		f.locker.err = &domain.StyleLockFailure{Err: errors.New("image service unavailable")}
		project := newEngineProject(t)

		_, err := f.engine.Run(context.Background(), project)
		var failure *domain.StyleLockFailure
		if !errors.As(err, &failure) {
			t.Fatalf("StyleLockFailure が返りませんでした: %v", err)
		}
		if project.FailureStage != domain.StateStyling {
			t.Errorf("原因ステージが不正です: %s", project.FailureStage)
		}
	})

	t.Run("レンダリングの基盤エラーが rendering ステージとして記録されること", func(t *testing.T) {
		f := newEngineFixture()
		f.renderer.err = errors.New("storage write failed")
		project := newEngineProject(t)

		if _, err := f.engine.Run(context.Background(), project); err == nil {
			t.Fatal("レンダリング失敗でも Run が成功しました")
		}
		if project.FailureStage != domain.StateRendering {
			t.Errorf("原因ステージが不正です: %s", project.FailureStage)
		}
	})

	t.Run("failed ページが残ると IncompleteStoryError になりパブリッシュされないこと", func(t *testing.T) {
		f := newEngineFixture()
		f.reviewer.failPages = []int{2, 4}
		project := newEngineProject(t)

		_, err := f.engine.Run(context.Background(), project)
		var incomplete *domain.IncompleteStoryError
		if !errors.As(err, &incomplete) {
			t.Fatalf("IncompleteStoryError が返りませんでした: %v", err)
		}
		if !reflect.DeepEqual(incomplete.FailedPages, []int{2, 4}) {
			t.Errorf("失敗ページの列挙が不正です: %v", incomplete.FailedPages)
		}
		if f.publisher.record != nil {
			t.Error("未完成プロジェクトがパブリッシュされました")
		}
		if project.State != domain.StateFailed || project.FailureStage != domain.StateQA {
			t.Errorf("失敗状態の記録が不正です: state=%s stage=%s", project.State, project.FailureStage)
		}
	})
}
