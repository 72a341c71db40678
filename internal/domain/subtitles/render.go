package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/scribe/internal/types"
)

// Lines longer than this are wrapped on word boundaries.
const charBudget = 42

// RenderSRT renders transcript segments as SubRip.
func RenderSRT(tr types.Transcript) (string, error) {
	if len(tr.Segments) == 0 {
		return "", fmt.Errorf("transcript has no segments")
	}
	var b strings.Builder
	for i, s := range tr.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1,
			cueTime(dur(s.Start), ','),
			cueTime(dur(s.End), ','),
			wrap(sanitize(s.Text)),
		)
	}
	return b.String(), nil
}

// RenderVTT renders transcript segments as WebVTT.
func RenderVTT(tr types.Transcript) (string, error) {
	if len(tr.Segments) == 0 {
		return "", fmt.Errorf("transcript has no segments")
	}
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	if tr.Language != "" {
		b.WriteString("Language: " + tr.Language + "\n")
	}
	b.WriteString("\n")
	for _, s := range tr.Segments {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
			cueTime(dur(s.Start), '.'),
			cueTime(dur(s.End), '.'),
			wrap(sanitize(s.Text)),
		)
	}
	return b.String(), nil
}

func wrap(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	cur := words[0]
	for _, w := range words[1:] {
		if len([]rune(cur))+1+len([]rune(w)) > charBudget {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur += " " + w
	}
	lines = append(lines, cur)
	return strings.Join(lines, "\n")
}

func cueTime(d time.Duration, sep byte) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	milli := int(d / time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hs, ms, s, sep, milli)
}

// sanitize keeps "-->" out of cue payloads.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "-->", "->")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec*1000+0.5) * time.Millisecond }
