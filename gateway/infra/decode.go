package infra

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// ErrUnsupportedEncoding indica um Content-Encoding que o gateway não decodifica.
var ErrUnsupportedEncoding = errors.New("unsupported content encoding")

// DecodeBody devolve um leitor do corpo decodificado. Codificações
// empilhadas ("gzip, zstd") são desfeitas da última para a primeira.
// Fechar o leitor devolvido fecha body.
func DecodeBody(encoding string, body io.ReadCloser) (io.ReadCloser, error) {
	codings := splitTokens(encoding)
	var r io.Reader = body
	closers := []io.Closer{body}

	for i := len(codings) - 1; i >= 0; i-- {
		switch codings[i] {
		case "identity":
			continue
		case "gzip", "x-gzip":
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, fmt.Errorf("gzip: %w", err)
			}
			r = zr
			closers = append(closers, zr)
		case "deflate":
			r = deflateReader(r)
			if c, ok := r.(io.Closer); ok {
				closers = append(closers, c)
			}
		case "zstd":
			zr, err := zstd.NewReader(r)
			if err != nil {
				return nil, fmt.Errorf("zstd: %w", err)
			}
			rc := zr.IOReadCloser()
			r = rc
			closers = append(closers, rc)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, codings[i])
		}
	}
	return &decodedBody{Reader: r, closers: closers}, nil
}

// CanDecode informa se todas as codificações do header são suportadas.
func CanDecode(encoding string) bool {
	for _, c := range splitTokens(encoding) {
		switch c {
		case "identity", "gzip", "x-gzip", "deflate", "zstd":
		default:
			return false
		}
	}
	return true
}

// deflateReader aceita "deflate" com envelope zlib (RFC 9110) e o deflate
// cru que alguns servidores mandam.
func deflateReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err == nil && isZlibHeader(head) {
		if zr, err := zlib.NewReader(br); err == nil {
			return zr
		}
	}
	return flate.NewReader(br)
}

func isZlibHeader(b []byte) bool {
	return b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (d *decodedBody) Close() error {
	var first error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func splitTokens(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if tok := strings.ToLower(strings.TrimSpace(part)); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
