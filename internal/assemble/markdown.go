package assemble

import (
	"fmt"
	"os"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/bindery/novelbind/internal/novel"
)

// MarkdownConverter converts chapter HTML to CommonMark. Safe for
// concurrent use across jobs.
type MarkdownConverter struct {
	conv *converter.Converter
}

// NewMarkdownConverter builds a converter with the base, commonmark, and
// table plugins enabled.
func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Convert transforms one chapter's HTML into Markdown.
func (c *MarkdownConverter) Convert(html string) (string, error) {
	return c.conv.ConvertString(html)
}

// writeMarkdown emits the whole work as a single Markdown document:
// title heading, author line, then one section per chapter.
func (a *Assembler) writeMarkdown(path string, work *novel.Work, chapters []novel.Chapter) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", work.Title)
	if work.Author != "" {
		fmt.Fprintf(&sb, "by %s\n\n", work.Author)
	}
	if work.Synopsis != "" {
		fmt.Fprintf(&sb, "%s\n\n", work.Synopsis)
	}
	for _, ch := range chapters {
		body, err := a.md.Convert(ch.HTML)
		if err != nil {
			return fmt.Errorf("chapter %d: %w", ch.Ref.Index, err)
		}
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", chapterTitle(ch), strings.TrimSpace(body))
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
