package assemble

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bindery/novelbind/internal/novel"
)

// EPUB builds an EPUB 3 container for one assembled work. Chapter bodies
// are the cleaned site HTML, wrapped per chapter into an XHTML shell.
type EPUB struct {
	work     *novel.Work
	chapters []novel.Chapter
	modified time.Time
}

// NewEPUB prepares a builder over a dense chapter sequence.
func NewEPUB(work *novel.Work, chapters []novel.Chapter, modified time.Time) *EPUB {
	return &EPUB{work: work, chapters: chapters, modified: modified}
}

// Write generates the EPUB at path.
func (e *EPUB) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create epub: %w", err)
	}
	defer f.Close()
	return e.WriteTo(f)
}

// WriteTo streams the EPUB container. The mimetype entry is written first
// and uncompressed, as the container format requires.
func (e *EPUB) WriteTo(w io.Writer) error {
	zw := zip.NewWriter(w)
	defer zw.Close()

	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return err
	}
	if _, err := mt.Write([]byte("application/epub+zip")); err != nil {
		return err
	}

	entries := []struct {
		name    string
		content string
	}{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", e.packageDoc()},
		{"OEBPS/nav.xhtml", e.navDoc()},
		{"OEBPS/styles/style.css", stylesheet},
	}
	for _, ent := range entries {
		zf, err := zw.Create(ent.name)
		if err != nil {
			return err
		}
		if _, err := zf.Write([]byte(ent.content)); err != nil {
			return err
		}
	}

	for _, ch := range e.chapters {
		zf, err := zw.Create("OEBPS/" + chapterFile(ch))
		if err != nil {
			return err
		}
		if _, err := zf.Write([]byte(chapterXHTML(ch))); err != nil {
			return err
		}
	}
	return nil
}

func chapterID(ch novel.Chapter) string {
	return fmt.Sprintf("ch%04d", ch.Ref.Index)
}

func chapterFile(ch novel.Chapter) string {
	return fmt.Sprintf("chapters/%s.xhtml", chapterID(ch))
}

func (e *EPUB) packageDoc() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	fmt.Fprintf(&sb, "    <dc:identifier id=\"pub-id\">urn:uuid:%s</dc:identifier>\n", uuid.New().String())
	fmt.Fprintf(&sb, "    <dc:title>%s</dc:title>\n", escapeXML(e.work.Title))
	if e.work.Author != "" {
		fmt.Fprintf(&sb, "    <dc:creator>%s</dc:creator>\n", escapeXML(e.work.Author))
	}
	sb.WriteString("    <dc:language>en</dc:language>\n")
	fmt.Fprintf(&sb, "    <dc:source>%s</dc:source>\n", escapeXML(e.work.URL))
	if e.work.Synopsis != "" {
		fmt.Fprintf(&sb, "    <dc:description>%s</dc:description>\n", escapeXML(e.work.Synopsis))
	}
	fmt.Fprintf(&sb, "    <meta property=\"dcterms:modified\">%s</meta>\n",
		e.modified.UTC().Format("2006-01-02T15:04:05Z"))
	sb.WriteString("  </metadata>\n  <manifest>\n")
	sb.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	sb.WriteString("    <item id=\"style\" href=\"styles/style.css\" media-type=\"text/css\"/>\n")
	for _, ch := range e.chapters {
		fmt.Fprintf(&sb, "    <item id=\"%s\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n",
			chapterID(ch), chapterFile(ch))
	}
	sb.WriteString("  </manifest>\n  <spine>\n")
	for _, ch := range e.chapters {
		fmt.Fprintf(&sb, "    <itemref idref=\"%s\"/>\n", chapterID(ch))
	}
	sb.WriteString("  </spine>\n</package>\n")
	return sb.String()
}

func (e *EPUB) navDoc() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
  <nav epub:type="toc">
    <h1>Contents</h1>
    <ol>
`)
	for _, ch := range e.chapters {
		fmt.Fprintf(&sb, "      <li><a href=\"%s\">%s</a></li>\n",
			chapterFile(ch), escapeXML(chapterTitle(ch)))
	}
	sb.WriteString("    </ol>\n  </nav>\n</body>\n</html>\n")
	return sb.String()
}

func chapterXHTML(ch novel.Chapter) string {
	title := escapeXML(chapterTitle(ch))
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>%s</title>
  <link rel="stylesheet" type="text/css" href="../styles/style.css"/>
</head>
<body>
  <h1 class="chapter-title">%s</h1>
%s
</body>
</html>
`, title, title, ch.HTML)
}

func escapeXML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const stylesheet = `body {
  font-family: Georgia, "Times New Roman", serif;
  line-height: 1.6;
  margin: 1em;
}

.chapter-title {
  text-align: center;
  margin: 2em 0 1.5em;
}

p {
  margin: 0.5em 0;
}

.gap-marker {
  font-style: italic;
  text-align: center;
  color: #666;
}
`
