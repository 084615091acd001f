// Package attach extracts text from files attached to a one-shot question.
package attach

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxTextSize caps the extracted text taken from one file.
const MaxTextSize = 64 << 10

// ErrUnsupported is returned for files that are neither PDF nor text.
var ErrUnsupported = errors.New("unsupported attachment")

// Document is the extracted text of one attachment.
type Document struct {
	Name      string
	Text      string
	Truncated bool
}

// Extract reads the file at path. PDFs are converted to plain text; other
// files must be valid UTF-8 text.
func Extract(path string) (Document, error) {
	doc := Document{Name: filepath.Base(path)}

	var text string
	var err error
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err = extractPDF(path)
	} else {
		text, err = extractText(path)
	}
	if err != nil {
		return Document{}, err
	}

	if len(text) > MaxTextSize {
		cut := MaxTextSize
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
		doc.Truncated = true
	}
	doc.Text = strings.TrimSpace(text)
	return doc, nil
}

func extractPDF(path string) (text string, err error) {
	// The pdf reader panics on some malformed files.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(plain, MaxTextSize+1))
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return string(b), nil
}

func extractText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, MaxTextSize+utf8.UTFMax))
	if err != nil {
		return "", err
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return "", fmt.Errorf("%w: %s looks binary", ErrUnsupported, filepath.Base(path))
	}
	// A read cut mid-rune is fine; only reject invalid sequences before it.
	valid := b
	for i := 0; i < utf8.UTFMax && len(valid) > 0 && !utf8.Valid(valid); i++ {
		valid = valid[:len(valid)-1]
	}
	if !utf8.Valid(valid) {
		return "", fmt.Errorf("%w: %s is not UTF-8 text", ErrUnsupported, filepath.Base(path))
	}
	return string(valid), nil
}

// Compose joins a question with its attachments into a single input.
func Compose(question string, docs ...Document) string {
	if len(docs) == 0 {
		return question
	}
	var sb strings.Builder
	sb.WriteString(question)
	for _, d := range docs {
		fmt.Fprintf(&sb, "\n\n[Attached: %s]\n%s", d.Name, d.Text)
	}
	return sb.String()
}
