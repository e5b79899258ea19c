package epub

import (
	"fmt"
	"strings"

	"github.com/readalong/readalong/internal/types"
)

// generateSMIL creates a SMIL document for a chapter with audio sync.
// Entries are emitted in token order; skipped and untimed entries are
// omitted per the Media Overlays spec.
func generateSMIL(chapterID string, audio ChapterAudio) string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<smil xmlns="http://www.w3.org/ns/SMIL" xmlns:epub="http://www.idpf.org/2007/ops" version="3.0">
  <body>
    <seq id="seq1" epub:textref="../chapters/`)
	sb.WriteString(chapterID)
	sb.WriteString(`.xhtml">
`)

	parIdx := 0
	for _, e := range audio.Entries {
		if e.Skipped || e.ClipBeginMS == nil || e.ClipEndMS == nil {
			continue
		}
		clipBegin := formatClockTime(*e.ClipBeginMS)
		clipEnd := formatClockTime(*e.ClipEndMS)

		sb.WriteString(fmt.Sprintf(`      <par id="par%d">
        <text src="../chapters/%s.xhtml#%s"/>
        <audio src="%s" clipBegin="%s" clipEnd="%s"/>
      </par>
`, parIdx, chapterID, e.TokenID, audio.AudioFile, clipBegin, clipEnd))
		parIdx++
	}

	sb.WriteString(`    </seq>
  </body>
</smil>
`)

	return sb.String()
}

// calculateTotalDuration returns the chapter audio's total duration, which
// callers already have from the AudioArtifact but may recompute from the
// last timed entry as a sanity cross-check.
func calculateTotalDuration(entries types.SyncTable) int {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ClipEndMS != nil {
			return *entries[i].ClipEndMS
		}
	}
	return 0
}
