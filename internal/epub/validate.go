package epub

import (
	"fmt"
	"regexp"
)

var spanIDRe = regexp.MustCompile(`id="(w\d+)"`)

// Validate checks the invariants the exporter must uphold before writing
// the package out: every SMIL text reference resolves to a span id that
// exists in its chapter, every audio reference corresponds to a chapter
// that will actually be written, and each chapter's timed entries are
// monotone and non-overlapping.
func Validate(e *Exporter) error {
	bodyByID := make(map[string]string, len(e.chapters))
	for _, ch := range e.chapters {
		bodyByID[ch.ID] = ch.Body
	}

	for chapterID, audio := range e.chapterAudios {
		body, ok := bodyByID[chapterID]
		if !ok {
			return fmt.Errorf("audio attached to unknown chapter %q", chapterID)
		}
		spanIDs := collectSpanIDs(body)

		var prevEnd *int
		for _, entry := range audio.Entries {
			if entry.Skipped || entry.ClipBeginMS == nil || entry.ClipEndMS == nil {
				continue
			}
			if !spanIDs[entry.TokenID] {
				return fmt.Errorf("chapter %s: SMIL text reference #%s has no matching span", chapterID, entry.TokenID)
			}
			if *entry.ClipBeginMS >= *entry.ClipEndMS {
				return fmt.Errorf("chapter %s: token %s has non-positive clip range [%d, %d)", chapterID, entry.TokenID, *entry.ClipBeginMS, *entry.ClipEndMS)
			}
			if prevEnd != nil && *entry.ClipBeginMS < *prevEnd {
				return fmt.Errorf("chapter %s: token %s begins at %d before previous clip ends at %d", chapterID, entry.TokenID, *entry.ClipBeginMS, *prevEnd)
			}
			end := *entry.ClipEndMS
			prevEnd = &end
		}
	}

	return nil
}

func collectSpanIDs(body string) map[string]bool {
	matches := spanIDRe.FindAllStringSubmatch(body, -1)
	ids := make(map[string]bool, len(matches))
	for _, m := range matches {
		ids[m[1]] = true
	}
	return ids
}
