package widget

import (
	"fmt"
	"io"
	"mime/multipart"
)

// FileData is the decoded value of a file-upload widget.
type FileData struct {
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
}

// ReadUpload reads a multipart file part into memory, bounded by maxSize.
func ReadUpload(fh *multipart.FileHeader, maxSize int64) (*FileData, error) {
	if maxSize > 0 && fh.Size > maxSize {
		return nil, fmt.Errorf("file %s exceeds maximum size of %d bytes", fh.Filename, maxSize)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return &FileData{Filename: fh.Filename, Data: data}, nil
}
