package stylelock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/asset"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"
	"github.com/LuisReinoso/law-of-one-illustrated/pkg/prompts"

	imagedom "github.com/shouni/gemini-image-kit/pkg/domain"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// 参照画像生成のアスペクト比です。正方形のプレートが最も再利用しやすいためです。
const referenceAspectRatio = "1:1"

// DefaultCharacterRetries はキャラクター参照生成の追加試行回数です。
const DefaultCharacterRetries = 2

// ImageGenerator は参照画像生成に使う画像生成サービスの最小契約です。
type ImageGenerator interface {
	GenerateMangaPanel(ctx context.Context, req imagedom.ImageGenerationRequest) (*imagedom.ImageResponse, error)
}

// AssetUploader は生成済み参照画像を File API へ登録する契約です。
type AssetUploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

// ArtifactWriter は生成画像の永続化先です。
type ArtifactWriter interface {
	Write(ctx context.Context, path string, r io.Reader, mime string) error
}

// Manager はプロジェクトの「ロックされた視覚的アイデンティティ」を所有します。
// スタイル参照画像を1枚だけ生成し、次に各キャラクターの参照画像を
// スタイル参照を条件として生成します。この順序は不変条件です。
type Manager struct {
	gen           ImageGenerator
	assets        AssetUploader
	writer        ArtifactWriter
	promptBuilder *prompts.ImagePromptBuilder
	limiter       *rate.Limiter
	charRetries   int
}

// New は依存関係を注入して Manager を初期化します。
func New(gen ImageGenerator, assets AssetUploader, writer ArtifactWriter, pb *prompts.ImagePromptBuilder, limiter *rate.Limiter) *Manager {
	return &Manager{
		gen:           gen,
		assets:        assets,
		writer:        writer,
		promptBuilder: pb,
		limiter:       limiter,
		charRetries:   DefaultCharacterRetries,
	}
}

// Lock はスタイル参照とキャラクター参照を確定させます。
// スタイル生成の失敗は StyleLockFailure（致命的）、キャラクター生成の失敗は
// 規定回数のリトライ後に CharacterLockFailure となります。
func (m *Manager) Lock(ctx context.Context, project *domain.Project, storyDir string) error {
	if err := m.lockStyle(ctx, project, storyDir); err != nil {
		return err
	}
	return m.lockCharacters(ctx, project, storyDir)
}

// lockStyle はスタイル参照画像を1枚だけ生成します。設定済みなら何もしません。
func (m *Manager) lockStyle(ctx context.Context, project *domain.Project, storyDir string) error {
	if project.Style != nil {
		slog.Info("スタイル参照は既にロック済みです", "slug", project.Slug)
		return nil
	}

	userPrompt, systemPrompt := m.promptBuilder.BuildStylePrompt(project.StyleDescriptor)

	if err := m.limiter.Wait(ctx); err != nil {
		return &domain.StyleLockFailure{Err: err}
	}

	slog.Info("スタイル参照画像を生成します", "slug", project.Slug, "style", project.StyleDescriptor)
	resp, err := m.gen.GenerateMangaPanel(ctx, imagedom.ImageGenerationRequest{
		Prompt:         userPrompt,
		NegativePrompt: prompts.BaseNegativePrompt,
		SystemPrompt:   systemPrompt,
		AspectRatio:    referenceAspectRatio,
	})
	if err != nil {
		return &domain.StyleLockFailure{Err: err}
	}

	stylePath, err := asset.StylePath(storyDir)
	if err != nil {
		return &domain.StyleLockFailure{Err: err}
	}
	if err := m.writer.Write(ctx, stylePath, bytes.NewReader(resp.Data), resp.MimeType); err != nil {
		return &domain.StyleLockFailure{Err: fmt.Errorf("スタイル参照画像の保存に失敗しました: %w", err)}
	}

	uri, err := m.assets.UploadFile(ctx, stylePath)
	if err != nil {
		return &domain.StyleLockFailure{Err: fmt.Errorf("スタイル参照画像のアップロードに失敗しました: %w", err)}
	}

	project.Style = &domain.StyleReference{
		Descriptor: project.StyleDescriptor,
		ImagePath:  stylePath,
		FileURI:    uri,
	}
	return nil
}

// lockCharacters はアウトラインに登場する全キャラクターの参照画像を生成します。
// 各キャラクターは独立のため並列に処理しますが、いずれもロック済みの
// スタイル参照を条件とします。
func (m *Manager) lockCharacters(ctx context.Context, project *domain.Project, storyDir string) error {
	style := project.Style
	if style == nil {
		return &domain.StyleLockFailure{Err: fmt.Errorf("スタイル参照が未設定のままキャラクターロックが要求されました")}
	}

	names := domain.UniqueCharacterNames(project.Outline)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, name := range names {
		char := project.FindCharacter(name)
		if char == nil {
			return &domain.CharacterLockFailure{
				Name: name,
				Err:  fmt.Errorf("アウトラインが未登録のキャラクターを参照しています"),
			}
		}
		if char.Locked() {
			continue
		}

		eg.Go(func() error {
			return m.lockCharacter(egCtx, char, *style, storyDir)
		})
	}

	return eg.Wait()
}

// lockCharacter は1キャラクター分の参照画像を規定リトライ内で生成します。
func (m *Manager) lockCharacter(ctx context.Context, char *domain.Character, style domain.StyleReference, storyDir string) error {
	userPrompt, systemPrompt := m.promptBuilder.BuildCharacterPrompt(*char, style)
	seed := char.Seed

	maxAttempts := 1 + m.charRetries
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := m.limiter.Wait(ctx); err != nil {
			return &domain.CharacterLockFailure{Name: char.Name, Attempts: attempt, Err: err}
		}

		slog.Info("キャラクター参照画像を生成します",
			"character", char.Name, "attempt", attempt, "max_attempts", maxAttempts)

		resp, err := m.gen.GenerateMangaPanel(ctx, imagedom.ImageGenerationRequest{
			Prompt:         userPrompt,
			NegativePrompt: prompts.BaseNegativePrompt,
			SystemPrompt:   systemPrompt,
			Seed:           &seed,
			FileAPIURI:     style.FileURI,
			ReferenceURL:   style.ImagePath,
			AspectRatio:    referenceAspectRatio,
		})
		if err != nil {
			lastErr = err
			slog.Warn("キャラクター参照画像の生成に失敗しました",
				"character", char.Name, "attempt", attempt, "error", err)
			continue
		}

		charPath, err := asset.CharacterPath(storyDir, char.Name)
		if err != nil {
			return &domain.CharacterLockFailure{Name: char.Name, Attempts: attempt, Err: err}
		}
		if err := m.writer.Write(ctx, charPath, bytes.NewReader(resp.Data), resp.MimeType); err != nil {
			return &domain.CharacterLockFailure{Name: char.Name, Attempts: attempt, Err: err}
		}

		uri, err := m.assets.UploadFile(ctx, charPath)
		if err != nil {
			return &domain.CharacterLockFailure{Name: char.Name, Attempts: attempt, Err: err}
		}

		char.ReferenceURL = charPath
		char.FileURI = uri
		return nil
	}

	return &domain.CharacterLockFailure{Name: char.Name, Attempts: maxAttempts, Err: lastErr}
}
