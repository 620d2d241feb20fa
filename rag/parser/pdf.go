package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var pdfPageFile = regexp.MustCompile(`page_(\d+)`)

// PDFParser extracts text content from PDF files using pdfcpu,
// producing one text block per page in page order.
type PDFParser struct {
	tempDir string
}

// NewPDFParser creates a new PDF parser
func NewPDFParser() *PDFParser {
	tempDir := filepath.Join(os.TempDir(), "docrag-pdf")
	os.MkdirAll(tempDir, 0755)
	return &PDFParser{tempDir: tempDir}
}

// ParseFile reads and parses a PDF file
func (p *PDFParser) ParseFile(ctx context.Context, filePath string) (*Document, error) {
	pdfCtx, err := api.ReadContextFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(p.tempDir, fmt.Sprintf("pages_%d", os.Getpid()))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create extraction dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(filePath, outDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract PDF content: %w", err)
	}

	pageTexts := make(map[int]string)
	entries, _ := os.ReadDir(outDir)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pdfPageFile.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		pageNum, _ := strconv.Atoi(match[1])
		data, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		pageTexts[pageNum] = readableText(string(data))
	}

	var blocks []string
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		if text := pageTexts[pageNum]; strings.TrimSpace(text) != "" {
			blocks = append(blocks, text)
		}
	}

	return &Document{
		Blocks: blocks,
		Title:  titleFromPath(filePath),
	}, nil
}

// FileType returns the file type this parser handles
func (p *PDFParser) FileType() FileType {
	return FileTypePDF
}

var pdfTextShow = regexp.MustCompile(`\((?:[^()\\]|\\.)*\)\s*(?:Tj|'|")|\[((?:[^\[\]\\]|\\.)*)\]\s*TJ`)

// readableText pulls the text-showing operands out of a page content
// stream. pdfcpu exposes raw content, so string arguments of the
// Tj/TJ operators are the recoverable text.
func readableText(content string) string {
	var builder strings.Builder
	for _, match := range pdfTextShow.FindAllString(content, -1) {
		for _, lit := range extractLiterals(match) {
			builder.WriteString(lit)
		}
		builder.WriteString(" ")
	}
	if builder.Len() == 0 {
		return ""
	}
	return strings.TrimSpace(builder.String())
}

// extractLiterals collects the unescaped contents of every
// parenthesized string literal in a content-stream fragment.
func extractLiterals(fragment string) []string {
	var literals []string
	var current strings.Builder
	inString := false
	escaped := false

	for _, r := range fragment {
		switch {
		case escaped:
			switch r {
			case 'n':
				current.WriteRune('\n')
			case 't':
				current.WriteRune('\t')
			case '(', ')', '\\':
				current.WriteRune(r)
			}
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '(' && !inString:
			inString = true
			current.Reset()
		case r == ')' && inString:
			inString = false
			literals = append(literals, current.String())
		case inString:
			current.WriteRune(r)
		}
	}

	return literals
}
