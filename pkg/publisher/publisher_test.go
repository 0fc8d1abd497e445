package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/LuisReinoso/law-of-one-illustrated/pkg/domain"
)

// memoryWriter は書き込まれた成果物をメモリに保持するスタブです。
type memoryWriter struct {
	files map[string][]byte
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{files: make(map[string][]byte)}
}

func (w *memoryWriter) Write(ctx context.Context, path string, r io.Reader, mime string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.files[path] = data
	return nil
}

func (w *memoryWriter) find(fragment string) ([]byte, bool) {
	for path, data := range w.files {
		if strings.Contains(path, fragment) {
			return data, true
		}
	}
	return nil, false
}

// fakeHTMLRunner は Markdown を受け取り固定の HTML を返すスタブです。
type fakeHTMLRunner struct {
	received []byte
}

func (f *fakeHTMLRunner) Run(ctx context.Context, title string, source []byte) (io.Reader, error) {
	f.received = source
	return bytes.NewReader([]byte("<html><body>" + title + "</body></html>")), nil
}

func newPublishableRecord(pages int) *domain.StoryRecord {
	record := &domain.StoryRecord{
		Slug:            "fox-and-owl",
		Title:           "Fox and Owl",
		Audience:        "children",
		StyleDescriptor: "watercolor illustration style",
		Style:           domain.StyleReference{Descriptor: "watercolor illustration style", ImagePath: "style.png"},
	}
	for i := 1; i <= pages; i++ {
		outline := domain.PageOutline{Index: i, Text: fmt.Sprintf("Once upon a time, page %d.", i)}
		record.Pages = append(record.Pages, domain.StoryPage{
			Outline: outline,
			Spec:    domain.ArtSpec{PageIndex: i, Outline: outline},
			Result: domain.RenderResult{
				PageIndex: i,
				ImagePath: fmt.Sprintf("stories/fox-and-owl/images/page_%02d.png", i),
				Verdict:   domain.VerdictPass,
			},
		})
	}
	return record
}

func TestStorybookPublisher_Publish(t *testing.T) {
	t.Run("JSONとMarkdownとHTMLが書き出されること", func(t *testing.T) {
		writer := newMemoryWriter()
		runner := &fakeHTMLRunner{}
		record := newPublishableRecord(3)

		result, err := NewStorybookPublisher(writer, runner).Publish(context.Background(), record, "stories/fox-and-owl")
		if err != nil {
			t.Fatalf("Publish に失敗: %v", err)
		}
		if result.DataPath == "" || result.MarkdownPath == "" || result.HTMLPath == "" {
			t.Errorf("生成ファイル情報が不完全です: %+v", result)
		}

		data, ok := writer.find("story_data.json")
		if !ok {
			t.Fatal("story_data.json が書き出されていません")
		}
		var restored domain.StoryRecord
		if err := json.Unmarshal(data, &restored); err != nil {
			t.Fatalf("story_data.json の解析に失敗: %v", err)
		}
		if restored.Slug != "fox-and-owl" || len(restored.Pages) != 3 {
			t.Errorf("復元したレコードが不正です: slug=%s pages=%d", restored.Slug, len(restored.Pages))
		}

		if _, ok := writer.find("storybook.html"); !ok {
			t.Error("storybook.html が書き出されていません")
		}
	})

	t.Run("Markdownが全ページのパネルを含むこと", func(t *testing.T) {
		writer := newMemoryWriter()
		record := newPublishableRecord(3)

		if _, err := NewStorybookPublisher(writer, nil).Publish(context.Background(), record, "stories/fox-and-owl"); err != nil {
			t.Fatalf("Publish に失敗: %v", err)
		}

		md, ok := writer.find("storybook.md")
		if !ok {
			t.Fatal("Markdown が書き出されていません")
		}
		content := string(md)
		if !strings.HasPrefix(content, "# Fox and Owl") {
			t.Errorf("タイトル見出しがありません: %q", content[:40])
		}
		for i := 1; i <= 3; i++ {
			panel := fmt.Sprintf("## Panel: images/page_%02d.png", i)
			if !strings.Contains(content, panel) {
				t.Errorf("パネル %q がありません", panel)
			}
			if !strings.Contains(content, fmt.Sprintf("page %d.", i)) {
				t.Errorf("ページ %d の本文がありません", i)
			}
		}
	})

	t.Run("ランナー未設定ならHTML変換をスキップすること", func(t *testing.T) {
		writer := newMemoryWriter()
		record := newPublishableRecord(1)

		result, err := NewStorybookPublisher(writer, nil).Publish(context.Background(), record, "stories/fox-and-owl")
		if err != nil {
			t.Fatalf("Publish に失敗: %v", err)
		}
		if result.HTMLPath != "" {
			t.Errorf("HTML 変換がスキップされていません: %s", result.HTMLPath)
		}
		if _, ok := writer.find("storybook.html"); ok {
			t.Error("HTML が書き出されています")
		}
	})

	t.Run("変換にはMarkdown本文がそのまま渡されること", func(t *testing.T) {
		writer := newMemoryWriter()
		runner := &fakeHTMLRunner{}
		record := newPublishableRecord(2)

		if _, err := NewStorybookPublisher(writer, runner).Publish(context.Background(), record, "stories/fox-and-owl"); err != nil {
			t.Fatalf("Publish に失敗: %v", err)
		}
		md, _ := writer.find("storybook.md")
		if !bytes.Equal(runner.received, md) {
			t.Error("HTML 変換へ渡された Markdown が書き出し内容と一致しません")
		}
	})
}
