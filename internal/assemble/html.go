package assemble

import (
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/bindery/novelbind/internal/novel"
)

// writeHTML emits the work as one standalone HTML document with the
// stylesheet inlined, suitable for direct reading in a browser.
func writeHTML(path string, work *novel.Work, chapters []novel.Chapter) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8"/>
<title>%s</title>
<style>
%s</style>
</head>
<body>
`, html.EscapeString(work.Title), stylesheet)

	fmt.Fprintf(&sb, "<h1>%s</h1>\n", html.EscapeString(work.Title))
	if work.Author != "" {
		fmt.Fprintf(&sb, "<p class=\"author\">by %s</p>\n", html.EscapeString(work.Author))
	}
	for _, ch := range chapters {
		fmt.Fprintf(&sb, "<section id=\"chapter-%d\">\n<h2 class=\"chapter-title\">%s</h2>\n%s\n</section>\n",
			ch.Ref.Index, html.EscapeString(chapterTitle(ch)), ch.HTML)
	}
	sb.WriteString("</body>\n</html>\n")
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
