package reader

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/agentic-research/rowcast/internal/config"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decode wraps r so it yields UTF-8 text. A byte order mark is honored and
// removed. For UTF-8 input, invalid sequences fail the read with a
// *ParseError wrapping ErrEncoding.
func Decode(r io.Reader, label string) (io.Reader, error) {
	if config.IsUTF8(label) {
		bom := transform.NewReader(r, unicode.BOMOverride(transform.Nop))
		return &validatingReader{r: bom, buf: make([]byte, 32*1024)}, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", label, err)
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

// validatingReader passes bytes through after checking they are UTF-8.
// A rune split across reads is carried over to the next fill.
type validatingReader struct {
	r    io.Reader
	buf  []byte
	pub  []byte
	out  []byte
	tail int // bytes of an incomplete rune at buf[:tail]
	off  int64
	err  error
}

func (v *validatingReader) Read(p []byte) (int, error) {
	for len(v.out) == 0 {
		if v.err != nil {
			return 0, v.err
		}
		v.fill()
	}
	n := copy(p, v.out)
	v.out = v.out[n:]
	return n, nil
}

func (v *validatingReader) fill() {
	n, err := v.r.Read(v.buf[v.tail:])
	data := v.buf[:v.tail+n]

	cut := len(data)
	if err == nil {
		// Hold back an incomplete trailing rune.
		for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
			if utf8.RuneStart(data[i]) {
				if !utf8.FullRune(data[i:]) {
					cut = i
				}
				break
			}
		}
	}

	if !utf8.Valid(data[:cut]) {
		bad := 0
		for bad < cut {
			r, size := utf8.DecodeRune(data[bad:cut])
			if r == utf8.RuneError && size <= 1 {
				break
			}
			bad += size
		}
		v.out = append(v.pub[:0], data[:bad]...)
		v.pub = v.out
		v.err = &ParseError{Kind: ErrEncoding, Err: fmt.Errorf("invalid UTF-8 at byte offset %d", v.off+int64(bad))}
		return
	}

	// out is drained before the next fill, so pub can be reused.
	v.out = append(v.pub[:0], data[:cut]...)
	v.pub = v.out
	v.tail = copy(v.buf, data[cut:])
	v.off += int64(cut)
	if err != nil {
		v.err = err
	}
}
