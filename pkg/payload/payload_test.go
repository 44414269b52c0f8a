package payload

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsa-judge/dsactl/pkg/logging"
	"github.com/dsa-judge/dsactl/pkg/models"
)

func gzipBase64(t *testing.T, data []byte) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecompress_GzipRoundTrip(t *testing.T) {
	u := New(nil)
	inputs := [][]byte{
		{},
		[]byte("hello"),
		bytes.Repeat([]byte{0x00, 0xff, 0x10}, 4096),
		[]byte("日本語のテキスト\n"),
	}
	for _, in := range inputs {
		out, err := u.Decompress(models.FilePayload{
			Filename:     "f.txt",
			Data:         gzipBase64(t, in),
			Compression:  "gzip",
			OriginalSize: int64(len(in)),
		})
		require.NoError(t, err)
		assert.Equal(t, len(in), len(out))
		assert.True(t, bytes.Equal(in, out))
	}
}

func TestDecompress_UnknownCompressionReturnsDecodedBytes(t *testing.T) {
	var logs bytes.Buffer
	u := New(logging.NewLoggerTo(&logs, logging.DEBUG, true))

	raw := []byte("not compressed at all")
	out, err := u.Decompress(models.FilePayload{
		Filename:    "plain.txt",
		Data:        base64.StdEncoding.EncodeToString(raw),
		Compression: "unknown",
	})
	require.NoError(t, err)
	assert.Equal(t, raw, out)
	assert.Contains(t, logs.String(), "unsupported compression")
}

func TestDecompress_CompressionIsMatchedExactly(t *testing.T) {
	var logs bytes.Buffer
	u := New(logging.NewLoggerTo(&logs, logging.DEBUG, true))

	encoded := gzipBase64(t, []byte("payload"))
	out, err := u.Decompress(models.FilePayload{Filename: "upper.txt", Data: encoded, Compression: "GZIP"})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, out, "only the exact value gzip is inflated")
	assert.Contains(t, logs.String(), "unsupported compression")
}

func TestDecompress_MalformedGzip(t *testing.T) {
	u := New(nil)
	_, err := u.Decompress(models.FilePayload{
		Filename:    "broken.bin",
		Data:        base64.StdEncoding.EncodeToString([]byte("definitely not gzip")),
		Compression: "gzip",
	})
	assert.Error(t, err)
}

func TestDecompress_MalformedBase64(t *testing.T) {
	u := New(nil)
	_, err := u.Decompress(models.FilePayload{Data: "%%%", Compression: "gzip"})
	assert.Error(t, err)
}

func TestDecompressString_EmptyInputs(t *testing.T) {
	u := New(nil)
	assert.Equal(t, "", u.DecompressString(nil))
	assert.Equal(t, "", u.DecompressString(&models.FilePayload{Data: ""}))
}

func TestDecompressString_DegradesOnError(t *testing.T) {
	u := New(nil)
	got := u.DecompressString(&models.FilePayload{
		Data:        base64.StdEncoding.EncodeToString([]byte("garbage")),
		Compression: "gzip",
	})
	assert.Equal(t, "", got)
}

func TestDecompressString_Text(t *testing.T) {
	u := New(nil)
	text := strings.Repeat("line of output\n", 100)
	got := u.DecompressString(&models.FilePayload{
		Data:        gzipBase64(t, []byte(text)),
		Compression: "gzip",
	})
	assert.Equal(t, text, got)
}

func TestDecompressFiles_PropagatesFailure(t *testing.T) {
	u := New(nil)
	_, err := u.DecompressFiles([]models.FilePayload{
		{Filename: "ok.txt", Data: gzipBase64(t, []byte("ok")), Compression: "gzip"},
		{Filename: "bad.txt", Data: "AAAA", Compression: "gzip"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.txt")
}
