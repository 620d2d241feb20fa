// Package parser extracts ordered text blocks from source documents.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// FileType represents the type of document file
type FileType string

const (
	FileTypePDF     FileType = "pdf"
	FileTypeMD      FileType = "md"
	FileTypeTXT     FileType = "txt"
	FileTypeHTML    FileType = "html"
	FileTypeUnknown FileType = "unknown"
)

// Document is the extraction result: ordered raw text blocks (one per
// page for paged formats, one total otherwise) plus a display title.
type Document struct {
	Blocks []string
	Title  string
}

// Parser defines the interface for document parsers
type Parser interface {
	// ParseFile reads and parses a document from a file path
	ParseFile(ctx context.Context, filePath string) (*Document, error)

	// FileType returns the file type this parser handles
	FileType() FileType
}

// Registry holds all registered parsers
type Registry struct {
	parsers map[FileType]Parser
}

// NewRegistry creates a registry with all built-in parsers registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[FileType]Parser)}
	r.Register(NewPDFParser())
	r.Register(NewTxtParser())
	r.Register(NewMarkdownParser())
	r.Register(NewHTMLParser())
	return r
}

// Register adds a parser to the registry
func (r *Registry) Register(p Parser) {
	r.parsers[p.FileType()] = p
}

// ParseFile parses a file using the parser registered for its extension.
func (r *Registry) ParseFile(ctx context.Context, filePath string) (*Document, error) {
	ext := strings.TrimPrefix(filepath.Ext(filePath), ".")
	p, ok := r.parsers[FileTypeFromExt(ext)]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %q for %s", ext, filePath)
	}
	return p.ParseFile(ctx, filePath)
}

// FileTypeFromExt converts a file extension to FileType
func FileTypeFromExt(ext string) FileType {
	switch strings.ToLower(ext) {
	case "pdf":
		return FileTypePDF
	case "md", "markdown":
		return FileTypeMD
	case "txt", "text":
		return FileTypeTXT
	case "html", "htm":
		return FileTypeHTML
	default:
		return FileTypeUnknown
	}
}

// titleFromPath derives a fallback title from the file name.
func titleFromPath(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
