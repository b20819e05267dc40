package captions

import (
	"fmt"
	"strings"
	"time"

	"github.com/clipsieve/clipsieve/internal/types"
)

// RenderSRT produces an SRT document for the transcript segments that fall
// inside [start, end). Cue times are clip-local so the renderer can burn the
// file into the extracted clip directly.
func RenderSRT(tr types.Transcript, start, end time.Duration) string {
	var b strings.Builder
	n := 0
	for _, seg := range tr.Segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		ss := seg.Start
		se := seg.End
		if ss < start {
			ss = start
		}
		if se > end {
			se = end
		}
		n++
		b.WriteString(fmt.Sprintf("%d\n", n))
		b.WriteString(srtTime(ss - start))
		b.WriteString(" --> ")
		b.WriteString(srtTime(se - start))
		b.WriteString("\n")
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// srtTime formats a duration as HH:MM:SS,mmm.
func srtTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	ms := int(d / time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
