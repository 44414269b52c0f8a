// Package payload unwraps file payloads transported as base64 text that may
// additionally be gzip-compressed.
package payload

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/dsa-judge/dsactl/pkg/logging"
	"github.com/dsa-judge/dsactl/pkg/models"
)

// Unwrapper decodes FilePayloads
type Unwrapper struct {
	logger *logging.Logger
}

// New creates an Unwrapper. A nil logger discards warnings.
func New(logger *logging.Logger) *Unwrapper {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Unwrapper{logger: logger.WithField("component", "payload")}
}

// Decompress returns the raw bytes carried by p.
// Unknown compression values are treated as plain base64.
func (u *Unwrapper) Decompress(p models.FilePayload) ([]byte, error) {
	raw, err := decodeBase64(p.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", p.Filename, err)
	}

	var out []byte
	switch p.Compression {
	case models.CompressionGzip:
		out, err = gunzip(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", p.Filename, err)
		}
	default:
		u.logger.Warn("unsupported compression, returning base64-decoded data", map[string]interface{}{
			"filename":    p.Filename,
			"compression": p.Compression,
		})
		out = raw
	}

	if p.OriginalSize > 0 && int64(len(out)) != p.OriginalSize {
		u.logger.Warn("decoded size differs from original size", map[string]interface{}{
			"filename":      p.Filename,
			"original_size": p.OriginalSize,
			"decoded_size":  len(out),
		})
	}
	return out, nil
}

// DecompressString decodes p as UTF-8 text. A nil or empty payload yields "".
// Decoding failures are logged and yield "".
func (u *Unwrapper) DecompressString(p *models.FilePayload) string {
	if p == nil || p.Data == "" {
		return ""
	}
	data, err := u.Decompress(*p)
	if err != nil {
		u.logger.Error("failed to unwrap text payload", map[string]interface{}{
			"filename": p.Filename,
			"error":    err.Error(),
		})
		return ""
	}
	return strings.ToValidUTF8(string(data), "�")
}

// DecompressFiles unwraps every payload. The first failure is returned.
func (u *Unwrapper) DecompressFiles(payloads []models.FilePayload) ([]models.File, error) {
	files := make([]models.File, 0, len(payloads))
	for _, p := range payloads {
		data, err := u.Decompress(p)
		if err != nil {
			return nil, err
		}
		files = append(files, models.File{Filename: p.Filename, Content: data})
	}
	return files, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []byte{}, nil
	}
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	// Some producers strip the padding
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func gunzip(raw []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
