package models

// CompressionGzip marks a payload whose data is base64(gzip(content))
const CompressionGzip = "gzip"

// FilePayload is a file as transported by grading and validation views
type FilePayload struct {
	Filename     string `json:"filename" yaml:"filename"`
	Data         string `json:"data" yaml:"-"`
	Compression  string `json:"compression,omitempty" yaml:"compression,omitempty"`
	OriginalSize int64  `json:"original_size,omitempty" yaml:"original_size,omitempty"`
}

// File is an unwrapped FilePayload
type File struct {
	Filename string
	Content  []byte
}
