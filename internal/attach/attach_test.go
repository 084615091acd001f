package attach

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// minimalPDF builds a one-page PDF showing text in Helvetica.
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 24 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract_Text(t *testing.T) {
	path := writeFile(t, "notes.md", []byte("  # Notes\nGo is fun.\n"))

	doc, err := Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Name != "notes.md" || doc.Text != "# Notes\nGo is fun." || doc.Truncated {
		t.Errorf("doc = %+v", doc)
	}
}

func TestExtract_PDF(t *testing.T) {
	path := writeFile(t, "hello.PDF", minimalPDF("Hello PDF"))

	doc, err := Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(doc.Text, "Hello PDF") {
		t.Errorf("text = %q", doc.Text)
	}
}

func TestExtract_BrokenPDF(t *testing.T) {
	path := writeFile(t, "broken.pdf", []byte("%PDF-1.4\nnot really"))

	if _, err := Extract(path); err == nil {
		t.Error("expected error for a broken PDF")
	}
}

func TestExtract_Binary(t *testing.T) {
	path := writeFile(t, "image.png", []byte{0x89, 'P', 'N', 'G', 0, 0, 0, 0x0d})

	if _, err := Extract(path); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestExtract_Truncates(t *testing.T) {
	path := writeFile(t, "big.txt", []byte(strings.Repeat("é", MaxTextSize)))

	doc, err := Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !doc.Truncated {
		t.Error("Truncated = false")
	}
	if len(doc.Text) > MaxTextSize {
		t.Errorf("len = %d, over limit", len(doc.Text))
	}
	if !strings.HasSuffix(doc.Text, "é") {
		t.Error("truncation split a character")
	}
}

func TestExtract_Missing(t *testing.T) {
	if _, err := Extract(filepath.Join(t.TempDir(), "gone.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestCompose(t *testing.T) {
	if got := Compose("why?"); got != "why?" {
		t.Errorf("Compose without docs = %q", got)
	}
	got := Compose("summarize", Document{Name: "a.txt", Text: "alpha"}, Document{Name: "b.pdf", Text: "beta"})
	want := "summarize\n\n[Attached: a.txt]\nalpha\n\n[Attached: b.pdf]\nbeta"
	if got != want {
		t.Errorf("Compose = %q, want %q", got, want)
	}
}
