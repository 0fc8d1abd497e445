package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/asset"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"

	"github.com/shouni/go-remote-io/pkg/remoteio"
)

// Snapshotter はステージ遷移ごとにプロジェクト全体を project_state.json へ
// 書き出します。途中失敗したプロジェクトの診断と再開の手掛かりになるため、
// 保存自体の失敗はワークフローを止めず警告に留めます。
type Snapshotter struct {
	writer remoteio.OutputWriter
}

// NewSnapshotter は出力先を注入して Snapshotter を初期化します。
func NewSnapshotter(writer remoteio.OutputWriter) *Snapshotter {
	return &Snapshotter{writer: writer}
}

// Snapshot は現在のプロジェクト状態を書き出します。
func (s *Snapshotter) Snapshot(ctx context.Context, project *domain.Project, storyDir string) {
	path, err := asset.StateSnapshotPath(storyDir)
	if err != nil {
		slog.Warn("スナップショットパスの解決に失敗しました", "slug", project.Slug, "error", err)
		return
	}

	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		slog.Warn("プロジェクト状態のシリアライズに失敗しました", "slug", project.Slug, "error", err)
		return
	}

	if err := s.writer.Write(ctx, path, strings.NewReader(string(data)), "application/json; charset=utf-8"); err != nil {
		slog.Warn("スナップショットの保存に失敗しました", "slug", project.Slug, "path", path, "error", err)
		return
	}

	slog.Debug("プロジェクト状態を保存しました", "slug", project.Slug, "state", project.State, "path", path)
}
