// Package assemble turns a job's ordered chapter buffer into output
// artifacts: EPUB, Markdown, or a single HTML document.
package assemble

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/bindery/novelbind/internal/novel"
)

// Config controls artifact placement and partial-result handling.
type Config struct {
	// OutputDir is the root under which each job gets its own directory.
	OutputDir string
	// RetainPartial keeps successfully written formats when a later
	// format conversion fails, for best-effort jobs only.
	RetainPartial bool
}

// Assembler writes the requested artifacts for a job into
// <OutputDir>/<jobID>/, named deterministically from the work title.
type Assembler struct {
	cfg    Config
	md     *MarkdownConverter
	clock  novel.Clock
	logger *zap.Logger
}

// New builds an assembler.
func New(cfg Config, clock novel.Clock, logger *zap.Logger) *Assembler {
	return &Assembler{
		cfg:    cfg,
		md:     NewMarkdownConverter(),
		clock:  clock,
		logger: logger,
	}
}

// Assemble produces one artifact per requested format plus a meta.json
// describing the result. Empty buffer slots become explicit gap-marker
// chapters so the reading order stays dense.
func (a *Assembler) Assemble(ctx context.Context, job novel.Job, work *novel.Work, buf *novel.Buffer) ([]novel.Artifact, error) {
	dir := filepath.Join(a.cfg.OutputDir, job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &novel.AssemblyError{Format: "", Err: fmt.Errorf("create output dir: %w", err)}
	}

	chapters := materialize(buf)
	base := slugify(work.Title)

	var artifacts []novel.Artifact
	retain := job.Policy == novel.PolicyBestEffort && a.cfg.RetainPartial
	for _, format := range job.Formats {
		if err := ctx.Err(); err != nil {
			return nil, &novel.AssemblyError{Format: format, Err: err}
		}
		path, err := a.writeFormat(format, dir, base, work, chapters)
		if err != nil {
			aerr := &novel.AssemblyError{Format: format, Err: err}
			if retain {
				a.logger.Warn("format skipped", zap.String("format", string(format)), zap.Error(err))
				continue
			}
			return nil, aerr
		}
		artifacts = append(artifacts, novel.Artifact{Format: format, Path: path})
	}
	if len(artifacts) == 0 {
		return nil, &novel.AssemblyError{Format: "", Err: fmt.Errorf("no artifact could be written")}
	}

	if err := a.writeMeta(dir, job, work, buf, artifacts); err != nil {
		a.logger.Warn("meta.json not written", zap.Error(err))
	}
	return artifacts, nil
}

func (a *Assembler) writeFormat(format novel.Format, dir, base string, work *novel.Work, chapters []novel.Chapter) (string, error) {
	switch format {
	case novel.FormatEPUB:
		path := filepath.Join(dir, base+".epub")
		return path, NewEPUB(work, chapters, a.clock.Now()).Write(path)
	case novel.FormatMarkdown:
		path := filepath.Join(dir, base+".md")
		return path, a.writeMarkdown(path, work, chapters)
	case novel.FormatHTML:
		path := filepath.Join(dir, base+".html")
		return path, writeHTML(path, work, chapters)
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

// meta mirrors the job outcome next to the artifacts so a delivered
// directory is self-describing.
type meta struct {
	JobID     string           `json:"job_id"`
	Title     string           `json:"title"`
	Author    string           `json:"author,omitempty"`
	SourceURL string           `json:"source_url"`
	Site      string           `json:"site"`
	Chapters  int              `json:"chapters"`
	Gaps      []int            `json:"gaps,omitempty"`
	Artifacts []novel.Artifact `json:"artifacts"`
	Generated string           `json:"generated_at"`
}

func (a *Assembler) writeMeta(dir string, job novel.Job, work *novel.Work, buf *novel.Buffer, artifacts []novel.Artifact) error {
	m := meta{
		JobID:     job.ID,
		Title:     work.Title,
		Author:    work.Author,
		SourceURL: work.URL,
		Site:      job.Site,
		Chapters:  buf.Len(),
		Gaps:      buf.Gaps(),
		Artifacts: artifacts,
		Generated: a.clock.Now().Format("2006-01-02T15:04:05Z"),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o644)
}

// materialize flattens the buffer into a dense chapter sequence, filling
// empty slots with explicit gap markers.
func materialize(buf *novel.Buffer) []novel.Chapter {
	slots := buf.Chapters()
	out := make([]novel.Chapter, 0, len(slots))
	for i, ch := range slots {
		if ch != nil {
			out = append(out, *ch)
			continue
		}
		idx := buf.First() + i
		out = append(out, novel.Chapter{
			Ref:  novel.ChapterRef{Index: idx, Title: fmt.Sprintf("Chapter %d", idx)},
			HTML: fmt.Sprintf(`<p class="gap-marker">Chapter %d could not be retrieved.</p>`, idx),
		})
	}
	return out
}

// slugify derives a filesystem-safe artifact basename from the work title.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	s := strings.Trim(b.String(), "-")
	if len(s) > 64 {
		s = strings.Trim(s[:64], "-")
	}
	if s == "" {
		return "novel"
	}
	return s
}

func chapterTitle(ch novel.Chapter) string {
	if t := strings.TrimSpace(ch.Ref.Title); t != "" {
		return t
	}
	return fmt.Sprintf("Chapter %d", ch.Ref.Index)
}
