package pdfinfo

import (
	"bytes"

	"github.com/ledongthuc/pdf"
)

// PageCount reports the number of pages in an in-memory PDF. The count is
// advisory metadata for the file listing: unreadable or malformed content
// yields 0 rather than an error.
func PageCount(content []byte) (pages int) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}
