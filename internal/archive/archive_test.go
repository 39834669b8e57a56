package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct{ name, body string }

// The standard library has no bzip2 writer; these were produced once with a
// reference compressor.
const (
	// "OrderID,Total\nORD1,10\n"
	ordersBzip2 = "QlpoOTFBWSZTWfJHzJoAAAXfgAAQAARgAAQglAAmBJQAIAAimmajI2iFMABNJVgiDb0+IFsSa5fxdyRThQkPJHzJoA=="
	// ustar archive with dir/x.csv ("x\n") and dir/y.csv ("y\n")
	batchTarBzip2 = "QlpoOTFBWSZTWfSiL8YAAIv7gMmQAARAAdeAAIBsIB9gCAggAHISpqGmmjI0xAPSBVImUyNNPSaeoBo/fGZOAxSpEQhrTysyLM1WKEJDffCJTyWVhFW0yF2CE2rmu6KpVUwPq6+3h2einwoohayJEYwPxdyRThQkPSiL8YA="
)

func decode64(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return b
}

func gzipBytes(t *testing.T, body []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(body)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func tarBytes(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "dir/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for _, m := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: m.name, Mode: 0o644, Size: int64(len(m.body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func zipBytes(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func readEntry(t *testing.T, e Entry) string {
	t.Helper()
	b, err := os.ReadFile(e.Path)
	require.NoError(t, err)
	return string(b)
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data []byte
		want Kind
	}{
		{"orders.dat", gzipBytes(t, []byte("a,b\n")), Gzip},
		{"orders.gz", []byte("a,b\n1,2\n"), Plain},
		{"orders.zip", zipBytes(t, member{"a.csv", "x"}), Zip},
		{"empty.zip", zipBytes(t), Zip},
		{"orders.tar", tarBytes(t, member{"a.csv", "x"}), Tar},
		{"orders.bin", gzipBytes(t, tarBytes(t, member{"a.csv", "x"})), TarGzip},
		{"fake.bz2", []byte("BZh9 not really"), Bzip2},
		{"short", []byte("P"), Plain},
		{"empty", nil, Plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := Detect(writeFile(t, dir, tt.name, tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestPrepare_Plain(t *testing.T) {
	p := writeFile(t, t.TempDir(), "orders.csv.gz", []byte("a\n1\n"))
	item, err := Prepare(context.Background(), p, Options{})
	require.NoError(t, err)
	defer func() { _ = item.Close() }()

	assert.Equal(t, Plain, item.Kind)
	require.Len(t, item.Entries, 1)
	assert.Equal(t, p, item.Entries[0].Path, "plain input is read in place")
	assert.Equal(t, "orders.csv.gz", item.Entries[0].Name)
}

func TestPrepare_GzipArbitraryExtension(t *testing.T) {
	p := writeFile(t, t.TempDir(), "feed.data", gzipBytes(t, []byte("a\n1\n")))
	item, err := Prepare(context.Background(), p, Options{TempDir: t.TempDir()})
	require.NoError(t, err)

	require.Len(t, item.Entries, 1)
	assert.Equal(t, "a\n1\n", readEntry(t, item.Entries[0]))
	assert.Equal(t, "feed.data", item.Entries[0].Name)

	ws := item.dir
	require.NoError(t, item.Close())
	assert.NoDirExists(t, ws)
	require.NoError(t, item.Close(), "close is idempotent")
}

func TestStripSuffix(t *testing.T) {
	tests := map[string]string{
		"orders.xml.gz":    "orders.xml",
		"orders.XML.GZ":    "orders.XML",
		"orders.csv.bz2":   "orders.csv",
		"orders.csv.gzip":  "orders.csv",
		"orders.csv.bzip2": "orders.csv",
		"orders.csv":       "orders.csv",
		".gz":              ".gz",
	}
	for in, want := range tests {
		assert.Equal(t, want, StripSuffix(in), in)
	}
}

func TestPrepare_ZipMaskAndLimit(t *testing.T) {
	data := zipBytes(t,
		member{"readme.txt", "skip"},
		member{"in/a.xml", "<a/>"},
		member{"in/b.xml", "<b/>"},
		member{"in/c.xml", "<c/>"},
	)
	p := writeFile(t, t.TempDir(), "batch.zip", data)

	item, err := Prepare(context.Background(), p, Options{
		Mask:     regexp.MustCompile(`\.xml$`),
		MaxFiles: 2,
		TempDir:  t.TempDir(),
	})
	require.NoError(t, err)
	defer func() { _ = item.Close() }()

	require.Len(t, item.Entries, 2)
	assert.Equal(t, "in/a.xml", item.Entries[0].Name)
	assert.Equal(t, "in/b.xml", item.Entries[1].Name)
	assert.Equal(t, "<b/>", readEntry(t, item.Entries[1]))
}

func TestPrepare_TarGzip(t *testing.T) {
	data := gzipBytes(t, tarBytes(t, member{"dir/x.csv", "x"}, member{"dir/y.csv", "y"}))
	p := writeFile(t, t.TempDir(), "batch.tgz", data)

	item, err := Prepare(context.Background(), p, Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	defer func() { _ = item.Close() }()

	assert.Equal(t, TarGzip, item.Kind)
	require.Len(t, item.Entries, 2)
	assert.Equal(t, "y", readEntry(t, item.Entries[1]))
}

func TestPrepare_Bzip2(t *testing.T) {
	p := writeFile(t, t.TempDir(), "orders.csv.bz2", decode64(t, ordersBzip2))

	item, err := Prepare(context.Background(), p, Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	defer func() { _ = item.Close() }()

	assert.Equal(t, Bzip2, item.Kind)
	require.Len(t, item.Entries, 1)
	assert.Equal(t, "orders.csv", item.Entries[0].Name)
	assert.Equal(t, "orders.csv", filepath.Base(item.Entries[0].Path))
	assert.Equal(t, "OrderID,Total\nORD1,10\n", readEntry(t, item.Entries[0]))
}

func TestPrepare_TarBzip2(t *testing.T) {
	p := writeFile(t, t.TempDir(), "batch.tbz", decode64(t, batchTarBzip2))

	item, err := Prepare(context.Background(), p, Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	defer func() { _ = item.Close() }()

	assert.Equal(t, TarBzip2, item.Kind)
	require.Len(t, item.Entries, 2)
	assert.Equal(t, "dir/x.csv", item.Entries[0].Name)
	assert.Equal(t, "x\n", readEntry(t, item.Entries[0]))
	assert.Equal(t, "dir/y.csv", item.Entries[1].Name)
	assert.Equal(t, "y\n", readEntry(t, item.Entries[1]))
}

func TestPrepare_Failures(t *testing.T) {
	dir := t.TempDir()
	corruptGzip := gzipBytes(t, bytes.Repeat([]byte("row\n"), 100))
	corruptGzip = corruptGzip[:len(corruptGzip)/2]

	tests := []struct {
		name string
		data []byte
		opts Options
		want error
	}{
		{"no mask matches", zipBytes(t, member{"a.txt", "x"}), Options{Mask: regexp.MustCompile(`\.xml$`)}, ErrNoMatches},
		{"empty archive", zipBytes(t), Options{}, ErrNoMatches},
		{"truncated gzip", corruptGzip, Options{}, ErrCorrupt},
		{"not really bzip2", []byte("BZh9 not really"), Options{}, ErrCorrupt},
		{"zip slip", zipBytes(t, member{"../../evil.csv", "x"}), Options{}, ErrUnsafePath},
		{"oversized member", zipBytes(t, member{"big.csv", "0123456789"}), Options{MaxFileSize: 5}, ErrTooLarge},
		{"oversized stream", gzipBytes(t, []byte("0123456789")), Options{MaxFileSize: 5}, ErrTooLarge},
		{"oversized plain", []byte("0123456789"), Options{MaxFileSize: 5}, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := t.TempDir()
			tt.opts.TempDir = ws
			p := writeFile(t, dir, "input.bin", tt.data)

			item, err := Prepare(context.Background(), p, tt.opts)
			require.Error(t, err)
			assert.Nil(t, item)
			assert.ErrorIs(t, err, tt.want)

			var ae *Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, p, ae.Input)

			left, err := os.ReadDir(ws)
			require.NoError(t, err)
			assert.Empty(t, left, "workspace removed on failure")
		})
	}
}
