// Package archive classifies input files by content and unpacks archives
// and compressed streams into a private workspace.
package archive

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Kind is the container format of an input file.
type Kind int

const (
	Plain Kind = iota
	Zip
	Gzip
	Bzip2
	Tar
	TarGzip
	TarBzip2
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Zip:
		return "zip"
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case Tar:
		return "tar"
	case TarGzip:
		return "tar.gz"
	case TarBzip2:
		return "tar.bz2"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Multi reports whether k holds several members.
func (k Kind) Multi() bool {
	return k == Zip || k == Tar || k == TarGzip || k == TarBzip2
}

const (
	headLen     = 512
	tarMagicOff = 257
)

var (
	zipLocal = []byte("PK\x03\x04")
	zipEmpty = []byte("PK\x05\x06")
	gzipSig  = []byte{0x1f, 0x8b}
	bzip2Sig = []byte("BZh")
	tarMagic = []byte("ustar")
)

// Detect classifies the file at path from its leading bytes. The name is
// never consulted.
func Detect(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return Plain, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	head, err := readHead(f)
	if err != nil {
		return Plain, fmt.Errorf("read %s: %w", path, err)
	}
	kind := classify(head)

	// Look inside single-stream compression for a tar header.
	switch kind {
	case Gzip:
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return kind, err
		}
		if isTar(peekGzip(f)) {
			return TarGzip, nil
		}
	case Bzip2:
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return kind, err
		}
		inner, _ := readHead(bzip2.NewReader(f))
		if isTar(inner) {
			return TarBzip2, nil
		}
	}
	return kind, nil
}

func classify(head []byte) Kind {
	switch {
	case bytes.HasPrefix(head, zipLocal), bytes.HasPrefix(head, zipEmpty):
		return Zip
	case bytes.HasPrefix(head, gzipSig):
		return Gzip
	case len(head) >= 4 && bytes.HasPrefix(head, bzip2Sig) && head[3] >= '1' && head[3] <= '9':
		return Bzip2
	case isTar(head):
		return Tar
	default:
		return Plain
	}
}

func isTar(head []byte) bool {
	return len(head) >= tarMagicOff+len(tarMagic) && bytes.Equal(head[tarMagicOff:tarMagicOff+len(tarMagic)], tarMagic)
}

// peekGzip returns the first decompressed bytes, or nil when the stream
// cannot be read; decompression errors surface later during Prepare.
func peekGzip(r io.Reader) []byte {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil
	}
	defer func() { _ = zr.Close() }()
	head, _ := readHead(zr)
	return head
}

// readHead reads up to headLen bytes; a shorter file is not an error.
func readHead(r io.Reader) ([]byte, error) {
	buf := make([]byte, headLen)
	n, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return buf[:n], err
}
