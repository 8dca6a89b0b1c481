package segment

import (
	"bytes"
	"encoding/xml"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteTMX(t *testing.T) {
	updated := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	segs := []Segment{
		{ID: 1, FileID: "ch1.txt", Source: "Huset er gammelt.", Target: "The house is old.", UpdatedAt: updated},
		{ID: 2, FileID: "ch1.txt", Source: "Det regner.", ParagraphEnd: true, UpdatedAt: updated},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTMX(&buf, segs))

	out := buf.String()
	require.Contains(t, out, `<?xml`)
	require.Contains(t, out, `<tmx version="1.4">`)
	require.Contains(t, out, `segtype="sentence"`)
	require.Contains(t, out, `tuid="1"`)
	require.Contains(t, out, `<seg>Huset er gammelt.</seg>`)
	require.Contains(t, out, `<seg>The house is old.</seg>`)
	require.Contains(t, out, `<prop type="paragraph-end">yes</prop>`)
	require.Contains(t, out, `last_updated="2026-03-14T12:00:00Z"`)

	// The output must be well-formed XML round-trippable by a decoder.
	var doc tmxFile
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Body.TUs, 2)
	require.Len(t, doc.Body.TUs[0].TUVs, 2)

	// An untranslated segment still carries an (empty) target tuv.
	require.Equal(t, "", doc.Body.TUs[1].TUVs[1].Seg)
}

func TestWriteTMXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTMX(&buf, nil))
	require.Contains(t, buf.String(), "<body>")
}
