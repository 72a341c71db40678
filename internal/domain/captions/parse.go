package captions

import (
	"bufio"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/forPelevin/scribe/internal/types"
)

const tsPattern = `(?:\d+:)?\d{1,2}:\d{2}[.,]\d{3}`

var (
	cueHeader   = regexp.MustCompile(`(` + tsPattern + `)\s*-->\s*(` + tsPattern + `)`)
	styleTag    = regexp.MustCompile(`<[^>]+>`)
	inlineStamp = regexp.MustCompile(`\d{1,2}:\d{2}:\d{2}[.,]\d{3}`)
)

type state int

const (
	awaitingCue state = iota
	accumulating
	emitting
)

type cue struct {
	start, end float64
	lines      []string
}

type parser struct {
	st   state
	cur  cue
	cues []cue
}

// Parse converts WebVTT-like timed text into a transcript tagged with
// lang. ok is false when no usable segment survives.
func Parse(raw, lang string) (tr types.Transcript, ok bool) {
	p := &parser{}
	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		p.feed(strings.TrimSpace(sc.Text()))
	}
	p.flush()
	return p.transcript(lang)
}

func (p *parser) feed(line string) {
	m := cueHeader.FindStringSubmatch(line)
	switch p.st {
	case awaitingCue:
		if m != nil {
			p.begin(m)
		}
	case accumulating:
		switch {
		case m != nil:
			p.flush()
			p.begin(m)
		case line == "":
			p.flush()
		default:
			if t := cleanLine(line); t != "" {
				p.cur.lines = append(p.cur.lines, t)
			}
		}
	}
}

func (p *parser) begin(m []string) {
	start, _ := parseTimestamp(m[1])
	end, _ := parseTimestamp(m[2])
	if end < start {
		end = start
	}
	p.cur = cue{start: start, end: end}
	p.st = accumulating
}

// flush moves an accumulating cue through emitting back to awaitingCue.
func (p *parser) flush() {
	if p.st != accumulating {
		return
	}
	p.st = emitting
	if len(p.cur.lines) > 0 {
		p.cues = append(p.cues, p.cur)
	}
	p.cur = cue{}
	p.st = awaitingCue
}

func (p *parser) transcript(lang string) (types.Transcript, bool) {
	if !sort.SliceIsSorted(p.cues, func(i, j int) bool { return p.cues[i].start < p.cues[j].start }) {
		sort.SliceStable(p.cues, func(i, j int) bool { return p.cues[i].start < p.cues[j].start })
	}

	var (
		segs []types.Segment
		kept []cue
	)
	for _, c := range p.cues {
		text := strings.Join(c.lines, " ")
		if len(segs) > 0 && segs[len(segs)-1].Text == text {
			continue
		}
		segs = append(segs, types.Segment{Start: c.start, End: c.end, Text: text})
		kept = append(kept, c)
	}
	if len(segs) == 0 {
		return types.Transcript{}, false
	}

	return types.Transcript{
		Text:     joinedText(kept),
		Segments: segs,
		Language: lang,
		Duration: segs[len(segs)-1].End,
	}, true
}

// joinedText rebuilds the flat text from the lines of cues that produced a
// segment, dropping a line equal to the one before it even when the two
// sit in different cues.
func joinedText(cues []cue) string {
	var parts []string
	for _, c := range cues {
		for _, l := range c.lines {
			if len(parts) > 0 && parts[len(parts)-1] == l {
				continue
			}
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " ")
}

func cleanLine(line string) string {
	s := styleTag.ReplaceAllString(line, "")
	s = inlineStamp.ReplaceAllString(s, "")
	if strings.TrimSpace(s) == "&nbsp;" {
		return ""
	}
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// parseTimestamp accepts HH:MM:SS.mmm and MM:SS.mmm with either separator.
func parseTimestamp(s string) (float64, bool) {
	s = strings.Replace(s, ",", ".", 1)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	var total float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, false
		}
		if i < len(parts)-1 {
			total = (total + v) * 60
		} else {
			total += v
		}
	}
	return total, true
}
