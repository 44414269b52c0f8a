package api

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
)

// Blob is a downloaded binary response
type Blob struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (c *Client) download(ctx context.Context, creds Credentials, p string) (*Blob, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: p, creds: creds})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download: %w", err)
	}

	name := FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = path.Base(p)
	}
	return &Blob{
		Filename:    name,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// FilenameFromDisposition extracts a safe base filename from a
// Content-Disposition header, preferring the RFC 5987 filename* form.
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		// Fall back to a lenient scan for filename="..."
		idx := strings.Index(strings.ToLower(header), "filename=")
		if idx < 0 {
			return ""
		}
		name := strings.Trim(strings.TrimSpace(header[idx+len("filename="):]), `"; `)
		return sanitize(name)
	}
	// mime decodes filename* into filename
	return sanitize(params["filename"])
}

func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
