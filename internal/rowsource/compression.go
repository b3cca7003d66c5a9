package rowsource

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

const acceptEncoding = "br, gzip, deflate"

var (
	gzipReaders   = sync.Pool{New: func() interface{} { return new(gzip.Reader) }}
	brotliReaders = sync.Pool{New: func() interface{} { return brotli.NewReader(nil) }}
)

// decompressingTransport advertises br, gzip and deflate and decodes the
// response body in place.
type decompressingTransport struct {
	next http.RoundTripper
}

func newDecompressingTransport(next http.RoundTripper) *decompressingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &decompressingTransport{next: next}
}

func (t *decompressingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decodeBody(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return resp, nil
}

// decodedBody closes the decoder, returns pooled readers and closes the wire body.
type decodedBody struct {
	io.Reader
	closeDecoder func() error
	wire         io.ReadCloser
}

func (b *decodedBody) Close() error {
	var err error
	if b.closeDecoder != nil {
		err = b.closeDecoder()
		b.closeDecoder = nil
	}
	return errors.Join(err, b.wire.Close())
}

// decodeBody unwraps every Content-Encoding layer, last applied first.
func decodeBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	for i := len(encodings) - 1; i >= 0; i-- {
		var (
			r       io.Reader
			closeFn func() error
		)
		switch enc := strings.ToLower(strings.TrimSpace(encodings[i])); enc {
		case "", "identity":
			continue
		case "gzip":
			zr := gzipReaders.Get().(*gzip.Reader)
			if err := zr.Reset(resp.Body); err != nil {
				gzipReaders.Put(zr)
				return fmt.Errorf("gzip: %w", err)
			}
			r = zr
			closeFn = func() error {
				err := zr.Close()
				gzipReaders.Put(zr)
				return err
			}
		case "br":
			br := brotliReaders.Get().(*brotli.Reader)
			if err := br.Reset(resp.Body); err != nil {
				brotliReaders.Put(br)
				return fmt.Errorf("brotli: %w", err)
			}
			r = br
			closeFn = func() error {
				brotliReaders.Put(br)
				return nil
			}
		case "deflate":
			rc := inflate(resp.Body)
			r, closeFn = rc, rc.Close
		default:
			return fmt.Errorf("unsupported Content-Encoding %q", enc)
		}
		resp.Body = &decodedBody{Reader: r, closeDecoder: closeFn, wire: resp.Body}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// inflate reads zlib-wrapped deflate, or raw deflate when the zlib header is absent.
func inflate(r io.Reader) io.ReadCloser {
	buffered := bufio.NewReader(r)
	if header, err := buffered.Peek(2); err == nil && isZlibHeader(header) {
		if zr, err := zlib.NewReader(buffered); err == nil {
			return zr
		}
	}
	return flate.NewReader(buffered)
}

func isZlibHeader(h []byte) bool {
	cmf, flg := h[0], h[1]
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
