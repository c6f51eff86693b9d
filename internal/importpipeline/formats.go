// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package importpipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	fitz "github.com/gen2brain/go-fitz"
	"github.com/mnako/letters"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// extMatch is a small helper most of the single-format parsers below share:
// claim a fixed confidence for a fixed set of extensions, nothing otherwise.
func extMatch(path string, exts ...string) (float64, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return 1.0, true
		}
	}
	return 0, false
}

// isTemporaryFile flags editor/OS lock and backup artifacts that happen to
// carry a supported extension (e.g. Word's "~$doc.docx" lock file).
func isTemporaryFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, "~$") || strings.HasPrefix(base, "._") || strings.HasSuffix(base, ".tmp")
}

func singleUnit(path, text, unitType string) []Unit {
	return []Unit{{
		Type:      unitType,
		Text:      text,
		Title:     filepath.Base(path),
		CreatedAt: modTime(path),
		URI:       "file://" + path,
	}}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// PDFParser extracts page text with go-fitz (MuPDF).
type PDFParser struct{}

func (PDFParser) Name() string { return "pdf" }

func (PDFParser) Detect(path string) (Detection, bool) {
	conf, ok := extMatch(path, ".pdf")
	if !ok || isTemporaryFile(path) {
		return Detection{}, false
	}
	return Detection{SourceType: "pdf", Confidence: conf}, true
}

func (PDFParser) Parse(ctx context.Context, path string, opts ParseOptions, progress ProgressFunc) ([]Unit, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	var builder strings.Builder
	for i := 0; i < numPages; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		pageText, err := doc.Text(i)
		if err != nil {
			continue
		}
		builder.WriteString(pageText)
		if i < numPages-1 {
			builder.WriteString("\n\n")
		}
		if progress != nil {
			progress(i+1, numPages)
		}
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return nil, fmt.Errorf("no text extracted from pdf: %s", path)
	}
	return singleUnit(path, text, "document"), nil
}

// DOCXParser extracts text with nguyenthenguyen/docx.
type DOCXParser struct{}

func (DOCXParser) Name() string { return "docx" }

func (DOCXParser) Detect(path string) (Detection, bool) {
	conf, ok := extMatch(path, ".docx")
	if !ok || isTemporaryFile(path) {
		return Detection{}, false
	}
	return Detection{SourceType: "docx", Confidence: conf}, true
}

func (DOCXParser) Parse(ctx context.Context, path string, opts ParseOptions, progress ProgressFunc) ([]Unit, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	text := strings.TrimSpace(doc.Editable().GetContent())
	if text == "" {
		return nil, fmt.Errorf("no text extracted from docx: %s", path)
	}
	if progress != nil {
		progress(1, 1)
	}
	return singleUnit(path, text, "document"), nil
}

// ExcelParser "markdownifies" each sheet: one unit per sheet, rows rendered
// as "Row N: Header: Value, ..." against the first row as headers.
type ExcelParser struct{}

func (ExcelParser) Name() string { return "excel" }

func (ExcelParser) Detect(path string) (Detection, bool) {
	conf, ok := extMatch(path, ".xlsx", ".xls")
	if !ok || isTemporaryFile(path) {
		return Detection{}, false
	}
	return Detection{SourceType: "spreadsheet", Confidence: conf}, true
}

func (ExcelParser) Parse(ctx context.Context, path string, opts ParseOptions, progress ProgressFunc) ([]Unit, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets in %s", path)
	}

	var units []Unit
	for idx, sheetName := range sheets {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rows, err := f.GetRows(sheetName)
		if err != nil || len(rows) == 0 {
			if progress != nil {
				progress(idx+1, len(sheets))
			}
			continue
		}

		headers := rows[0]
		var builder strings.Builder
		builder.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))

		for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
			row := rows[rowIdx]
			var parts []string
			for colIdx, header := range headers {
				if colIdx >= len(row) || row[colIdx] == "" {
					continue
				}
				value := strings.TrimSpace(row[colIdx])
				if value == "" {
					continue
				}
				headerName := strings.TrimSpace(header)
				if headerName == "" {
					headerName = fmt.Sprintf("Column %d", colIdx+1)
				}
				parts = append(parts, fmt.Sprintf("%s: %s", headerName, value))
			}
			if len(parts) > 0 {
				builder.WriteString(fmt.Sprintf("Row %d: %s\n", rowIdx+1, strings.Join(parts, ", ")))
			}
		}

		content := strings.TrimSpace(builder.String())
		if content != "" {
			units = append(units, Unit{
				Type:      "spreadsheet_sheet",
				Text:      content,
				Title:     fmt.Sprintf("%s — %s", filepath.Base(path), sheetName),
				CreatedAt: modTime(path),
				URI:       fmt.Sprintf("file://%s#%s", path, sheetName),
				Metadata:  map[string]interface{}{"sheet": sheetName},
			})
		}
		if progress != nil {
			progress(idx+1, len(sheets))
		}
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("no content extracted from excel: %s", path)
	}
	return units, nil
}

// HTMLParser strips script/style/noscript and keeps the rendered text.
type HTMLParser struct{}

func (HTMLParser) Name() string { return "html" }

func (HTMLParser) Detect(path string) (Detection, bool) {
	conf, ok := extMatch(path, ".html", ".htm")
	if !ok || isTemporaryFile(path) {
		return Detection{}, false
	}
	return Detection{SourceType: "html", Confidence: conf}, true
}

func (HTMLParser) Parse(ctx context.Context, path string, opts ParseOptions, progress ProgressFunc) ([]Unit, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open html: %w", err)
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return nil, fmt.Errorf("no text extracted from html: %s", path)
	}
	if progress != nil {
		progress(1, 1)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	unit := singleUnit(path, text, "web_page")
	if title != "" {
		unit[0].Title = title
	}
	return unit, nil
}

// EmailParser parses EML via mnako/letters, rendering subject/sender/date
// header lines above the body (text preferred over HTML).
type EmailParser struct{}

func (EmailParser) Name() string { return "email" }

func (EmailParser) Detect(path string) (Detection, bool) {
	conf, ok := extMatch(path, ".eml")
	if !ok || isTemporaryFile(path) {
		return Detection{}, false
	}
	return Detection{SourceType: "email", Confidence: conf}, true
}

func (EmailParser) Parse(ctx context.Context, path string, opts ParseOptions, progress ProgressFunc) ([]Unit, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open eml: %w", err)
	}
	defer file.Close()

	email, err := letters.ParseEmail(file)
	if err != nil {
		return nil, fmt.Errorf("parse eml: %w", err)
	}

	var builder strings.Builder
	if email.Headers.Subject != "" {
		builder.WriteString(fmt.Sprintf("Subject: %s\n", email.Headers.Subject))
	}

	var sender string
	if len(email.Headers.From) > 0 {
		from := email.Headers.From[0]
		if from.Name != "" {
			sender = fmt.Sprintf("%s <%s>", from.Name, from.Address)
		} else {
			sender = from.Address
		}
		builder.WriteString(fmt.Sprintf("Sender: %s\n", sender))
	}
	if !email.Headers.Date.IsZero() {
		builder.WriteString(fmt.Sprintf("Date: %s\n", email.Headers.Date.Format(time.RFC3339)))
	}
	builder.WriteString("\n")

	body := email.Text
	if body == "" {
		body = email.HTML
	}
	builder.WriteString(body)

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return nil, fmt.Errorf("no content extracted from eml: %s", path)
	}
	if progress != nil {
		progress(1, 1)
	}

	createdAt := email.Headers.Date
	if createdAt.IsZero() {
		createdAt = modTime(path)
	}

	return []Unit{{
		Type:       "email",
		Text:       text,
		Title:      email.Headers.Subject,
		AuthorName: sender,
		CreatedAt:  createdAt,
		URI:        "file://" + path,
	}}, nil
}

// TextParser covers plain .txt/.md files verbatim.
type TextParser struct{}

func (TextParser) Name() string { return "text" }

func (TextParser) Detect(path string) (Detection, bool) {
	conf, ok := extMatch(path, ".txt", ".md")
	if !ok || isTemporaryFile(path) {
		return Detection{}, false
	}
	return Detection{SourceType: "text", Confidence: conf}, true
}

func (TextParser) Parse(ctx context.Context, path string, opts ParseOptions, progress ProgressFunc) ([]Unit, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}
	text := string(content)
	if text == "" {
		return nil, fmt.Errorf("no content in text file: %s", path)
	}
	if progress != nil {
		progress(1, 1)
	}
	return singleUnit(path, text, "note"), nil
}

// DefaultRegistry registers every built-in parser; registration order
// breaks detection-confidence ties.
func DefaultRegistry() *Registry {
	return NewRegistry(
		PDFParser{},
		DOCXParser{},
		ExcelParser{},
		HTMLParser{},
		EmailParser{},
		TextParser{},
	)
}
