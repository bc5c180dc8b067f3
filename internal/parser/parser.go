package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmtext "github.com/yuin/goldmark/text"

	"outreach-mailer/internal/models"
)

// SupportedExtensions lists the file types Extract understands.
var SupportedExtensions = []string{".txt", ".md", ".pdf", ".docx", ".pptx", ".xlsx", ".xlsm"}

// LoadDocument reads the file at path and returns its plain text as a Document.
func LoadDocument(ctx context.Context, path string) (models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Document{}, models.NewInputError("file %s does not exist", path)
		}
		return models.Document{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	content, err := Extract(ctx, filepath.Base(path), f)
	if err != nil {
		return models.Document{}, err
	}
	return models.NewDocument(path, content, map[string]any{"format": formatOf(path)}), nil
}

// Extract returns the plain text of r, choosing a decoder from the extension
// of name.
func Extract(ctx context.Context, name string, r io.Reader) (string, error) {
	ext := formatOf(name)
	if !isSupported(ext) {
		return "", models.NewInputError("unsupported file format %q", ext)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	log.Debug().Str("file", name).Str("format", ext).Int("bytes", len(data)).Msg("Extracting text")

	var text string
	switch ext {
	case ".txt", "":
		text, err = parseText(ctx, data)
	case ".md":
		text = parseMarkdown(data)
	case ".pdf":
		text, err = parsePDF(data)
	case ".docx":
		text, err = parseDOCX(data)
	case ".pptx":
		text, err = parsePPTX(data)
	case ".xlsx", ".xlsm":
		text, err = parseSpreadsheet(data)
	}
	if err != nil {
		return "", models.NewInputError("cannot read %s: %v", name, err)
	}
	return text, nil
}

func formatOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func isSupported(ext string) bool {
	if ext == "" {
		return true
	}
	for _, s := range SupportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}

func parseText(ctx context.Context, data []byte) (string, error) {
	docs, err := documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, d := range docs {
		b.WriteString(d.PageContent)
	}
	return b.String(), nil
}

// parseMarkdown renders the markdown AST as plain text, one block per line.
func parseMarkdown(src []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(gmtext.NewReader(src))

	var b strings.Builder
	newline := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				newline()
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(node.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func parsePDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var pages []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) != "" {
			pages = append(pages, pageText)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func parseDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer r.Close()

	return extractTextFromXML(r.Editable().GetContent())
}

func parsePPTX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range zr.File {
		name := strings.TrimPrefix(file.Name, "ppt/slides/slide")
		if name == file.Name || !strings.HasSuffix(name, ".xml") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(name, ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var out []string
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return "", err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		slideText, err := extractTextFromXML(string(raw))
		if err != nil {
			return "", fmt.Errorf("slide %d: %w", s.num, err)
		}
		if slideText != "" {
			out = append(out, slideText)
		}
	}
	return strings.Join(out, "\n\n"), nil
}

func parseSpreadsheet(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var text strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return "", fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		if len(rows) == 0 {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n")
		}
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

// extractTextFromXML collects the text runs of an OOXML part, one paragraph
// per line. Works for both word (w:t, w:p) and drawing (a:t, a:p) markup.
func extractTextFromXML(xmlContent string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(xmlContent))
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
