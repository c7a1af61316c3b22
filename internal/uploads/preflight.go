package uploads

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Check is the outcome of a successful upload preflight.
type Check struct {
	ContentType string
	PageCount   int
}

// Preflight sniffs the content type of an uploaded document and rejects files
// that are obviously unusable before they are sent to the remote service. For
// PDFs it also verifies the file parses and reports the page count.
func Preflight(fileName string, content []byte) (Check, error) {
	if len(content) == 0 {
		return Check{}, fmt.Errorf("uploaded file is empty")
	}

	contentType := sniffContentType(fileName, content)

	if contentType == "application/pdf" {
		reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
		if err != nil {
			return Check{}, fmt.Errorf("invalid pdf: %w", err)
		}
		pages := reader.NumPage()
		if pages <= 0 {
			return Check{}, fmt.Errorf("pdf has no pages")
		}
		return Check{ContentType: contentType, PageCount: pages}, nil
	}

	return Check{ContentType: contentType}, nil
}

func sniffContentType(fileName string, content []byte) string {
	sniffLen := len(content)
	if sniffLen > 512 {
		sniffLen = 512
	}
	detected := http.DetectContentType(content[:sniffLen])

	// DetectContentType cannot identify PDFs without the %PDF magic at byte
	// zero, so fall back to the extension for octet-stream results.
	if detected == "application/octet-stream" && strings.HasSuffix(strings.ToLower(fileName), ".pdf") {
		return "application/pdf"
	}
	if strings.HasPrefix(detected, "application/pdf") {
		return "application/pdf"
	}
	return detected
}
