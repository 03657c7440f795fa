package vat

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// acceptEncoding advertises every content coding decodeBody understands.
const acceptEncoding = "gzip, deflate, br, zstd"

// decodeBody undoes the Content-Encoding of a response body. Codings are
// removed in reverse order of application.
func decodeBody(contentEncoding string, body []byte) ([]byte, error) {
	if contentEncoding == "" {
		return body, nil
	}

	codings := strings.Split(contentEncoding, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		var err error
		body, err = decodeOne(strings.ToLower(strings.TrimSpace(codings[i])), body)
		if err != nil {
			return nil, err
		}
	}

	return body, nil
}

func decodeOne(coding string, body []byte) ([]byte, error) {
	var (
		r   io.ReadCloser
		err error
	)

	switch coding {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		r, err = gzip.NewReader(bytes.NewReader(body))
	case "deflate":
		r, err = zlib.NewReader(bytes.NewReader(body))
	case "br":
		r = io.NopCloser(brotli.NewReader(bytes.NewReader(body)))
	case "zstd":
		var d *zstd.Decoder
		d, err = zstd.NewReader(bytes.NewReader(body))
		if err == nil {
			r = d.IOReadCloser()
		}
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", coding)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", coding, err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", coding, err)
	}
	return out, nil
}
