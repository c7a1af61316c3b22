package uploads

import (
	"strings"
	"testing"
)

func TestPreflightRejectsEmptyFile(t *testing.T) {
	if _, err := Preflight("empty.pdf", nil); err == nil {
		t.Fatalf("expected error for empty file")
	}
}

func TestPreflightRejectsCorruptPDF(t *testing.T) {
	content := []byte("%PDF-1.7 this is not actually a pdf body")
	if _, err := Preflight("broken.pdf", content); err == nil {
		t.Fatalf("expected error for corrupt pdf")
	}
}

func TestPreflightSniffsPlainText(t *testing.T) {
	check, err := Preflight("notes.txt", []byte("plain text document"))
	if err != nil {
		t.Fatalf("Preflight: %v", err)
	}
	if !strings.HasPrefix(check.ContentType, "text/plain") {
		t.Fatalf("content type = %q", check.ContentType)
	}
	if check.PageCount != 0 {
		t.Fatalf("page count for non-pdf = %d", check.PageCount)
	}
}

func TestPreflightSniffsPNG(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	check, err := Preflight("scan.png", png)
	if err != nil {
		t.Fatalf("Preflight: %v", err)
	}
	if check.ContentType != "image/png" {
		t.Fatalf("content type = %q", check.ContentType)
	}
}
