package export

import (
	"fmt"
	"strings"

	"github.com/scribelabs/scribe-live/internal/batch"
)

// FormatSRT renders subtitle segments as a SubRip (.srt) document.
// Cues are numbered from 1 in input order.
func FormatSRT(segments []batch.Segment) string {
	var b strings.Builder

	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("%d\n", i+1))
		b.WriteString(fmt.Sprintf("%s --> %s\n", formatTimestamp(seg.Start), formatTimestamp(seg.End)))
		b.WriteString(seg.Text)
		b.WriteString("\n")
	}

	return b.String()
}

// formatTimestamp renders seconds as an SRT timestamp (HH:MM:SS,mmm).
// Fractional seconds are truncated to millisecond precision.
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	totalMillis := int64(seconds * 1000)
	hours := totalMillis / 3600000
	minutes := (totalMillis % 3600000) / 60000
	secs := (totalMillis % 60000) / 1000
	millis := totalMillis % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
