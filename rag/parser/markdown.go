package parser

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	mdHeading = regexp.MustCompile(`(?m)^#+\s+`)
	mdLink    = regexp.MustCompile(`!?\[([^\]]*)\]\([^\)]+\)`)
	mdFence   = regexp.MustCompile("```[\\s\\S]*?```")
)

// MarkdownParser handles markdown files
type MarkdownParser struct{}

// NewMarkdownParser creates a new markdown parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

// ParseFile reads and parses a markdown file
func (p *MarkdownParser) ParseFile(ctx context.Context, filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	content := removeFrontmatter(string(data))
	title := extractHeadingTitle(content)
	if title == "" {
		title = titleFromPath(filePath)
	}

	content = cleanMarkdown(content)
	if strings.TrimSpace(content) == "" {
		return &Document{Title: title}, nil
	}

	return &Document{
		Blocks: []string{content},
		Title:  title,
	}, nil
}

// FileType returns the file type this parser handles
func (p *MarkdownParser) FileType() FileType {
	return FileTypeMD
}

// removeFrontmatter strips a leading YAML frontmatter block.
func removeFrontmatter(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[0]) != "---" {
		return content
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	return content
}

// extractHeadingTitle returns the first heading text, if any.
func extractHeadingTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			title := strings.TrimSpace(strings.TrimLeft(line, "#"))
			if title != "" && len(title) < 100 {
				return title
			}
		}
		return ""
	}
	return ""
}

// cleanMarkdown strips formatting markers that add no meaning to the
// embedded text.
func cleanMarkdown(content string) string {
	content = mdFence.ReplaceAllString(content, "")
	content = mdHeading.ReplaceAllString(content, "")
	content = mdLink.ReplaceAllString(content, "$1")
	content = strings.NewReplacer("**", "", "__", "", "*", "", "`", "").Replace(content)

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n\n")
}
