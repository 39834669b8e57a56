package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/rowcast/internal/ingest"
	"github.com/agentic-research/rowcast/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowRun_RecordsInNameOrder(t *testing.T) {
	store, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	id, err := store.BeginRun("{}", time.Unix(1_700_000_000, 0))
	require.NoError(t, err)

	records := make(map[string]*ingest.Counts)
	for i, name := range []string{"zeta", "alpha", "mid", "beta", "omega"} {
		bm := roaring.New()
		bm.Add(uint32(i + 1))
		records[name] = &ingest.Counts{Raw: 1, Rejected: 1, RejectedOrdinals: bm}
	}
	require.NoError(t, store.RecordOutcome(id, 1, &ingest.FileOutcome{
		Input: "in/a.xml", Name: "a.xml", Rejected: 5, Records: records,
	}))

	want := []string{
		"      alpha rejected ordinals: [2]",
		"      beta rejected ordinals: [4]",
		"      mid rejected ordinals: [3]",
		"      omega rejected ordinals: [5]",
		"      zeta rejected ordinals: [1]",
	}
	for range 5 {
		var out bytes.Buffer
		require.NoError(t, showRun(&out, store, id))
		lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
		require.Len(t, lines, 7)
		assert.Equal(t, "  1 OK      a.xml: 0 accepted, 5 rejected", lines[1])
		assert.Equal(t, want, lines[2:])
	}
}
