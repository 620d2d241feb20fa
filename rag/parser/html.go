package parser

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	htmlScript   = regexp.MustCompile(`<script[^>]*>[\s\S]*?</script>`)
	htmlStyle    = regexp.MustCompile(`<style[^>]*>[\s\S]*?</style>`)
	htmlComment  = regexp.MustCompile(`<!--[\s\S]*?-->`)
	htmlTag      = regexp.MustCompile(`<[^>]+>`)
	htmlTitle    = regexp.MustCompile(`<title[^>]*>(.*?)</title>`)
	htmlH1       = regexp.MustCompile(`<h1[^>]*>(.*?)</h1>`)
	htmlBlockTag = regexp.MustCompile(`</?(?:div|p|h[1-6]|br|hr|li|tr|th|td|header|footer|main|section|article|ul|ol|table|blockquote|pre|code)[^>]*>`)
	htmlSpaces   = regexp.MustCompile(`[ \t]+`)
	htmlNewlines = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

var htmlEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
	"&quot;", "\"",
	"&apos;", "'",
	"&#8217;", "'",
	"&#8220;", "\"",
	"&#8221;", "\"",
)

// HTMLParser handles HTML files
type HTMLParser struct{}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

// ParseFile reads and parses an HTML file
func (p *HTMLParser) ParseFile(ctx context.Context, filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	content := string(data)
	title := extractHTMLTitle(content)
	if title == "" {
		title = titleFromPath(filePath)
	}

	text := htmlToText(content)
	if text == "" {
		return &Document{Title: title}, nil
	}

	return &Document{
		Blocks: []string{text},
		Title:  title,
	}, nil
}

// FileType returns the file type this parser handles
func (p *HTMLParser) FileType() FileType {
	return FileTypeHTML
}

// extractHTMLTitle returns the <title> text, falling back to the first
// <h1> heading.
func extractHTMLTitle(content string) string {
	if m := htmlTitle.FindStringSubmatch(content); len(m) > 1 {
		if title := strings.TrimSpace(m[1]); title != "" {
			return title
		}
	}
	if m := htmlH1.FindStringSubmatch(content); len(m) > 1 {
		if title := strings.TrimSpace(htmlTag.ReplaceAllString(m[1], "")); title != "" {
			return title
		}
	}
	return ""
}

// htmlToText strips markup down to readable text: scripts, styles and
// comments removed, block elements turned into line breaks, remaining
// tags dropped, entities decoded.
func htmlToText(content string) string {
	content = htmlScript.ReplaceAllString(content, "")
	content = htmlStyle.ReplaceAllString(content, "")
	content = htmlComment.ReplaceAllString(content, "")
	content = htmlBlockTag.ReplaceAllString(content, "\n")
	content = htmlTag.ReplaceAllString(content, " ")
	content = htmlEntities.Replace(content)

	content = htmlSpaces.ReplaceAllString(content, " ")
	content = htmlNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
