package captions

import (
	"sort"
	"strings"

	"github.com/forPelevin/scribe/internal/types"
)

// Track is one caption track offered by the structured caption API.
type Track struct {
	Language string
	Auto     bool
	URL      string
	Name     string
}

// Provenance maps the track kind onto a transcript provenance.
func (t Track) Provenance() types.Provenance {
	if t.Auto {
		return types.ProvenanceAuto
	}
	return types.ProvenanceManual
}

// SelectTrack applies the structured API policy: a manual track in any
// preferred language beats every auto-generated track; auto-generated
// tracks are considered next; a final pass accepts regional variants of
// a preferred language ("es" and "es-419" share the base "es").
func SelectTrack(tracks []Track, langs []string) (Track, bool) {
	for _, auto := range []bool{false, true} {
		for _, lang := range langs {
			for _, t := range tracks {
				if t.Auto == auto && strings.EqualFold(t.Language, lang) {
					return t, true
				}
			}
		}
	}
	for _, lang := range langs {
		base := baseLanguage(lang)
		for _, auto := range []bool{false, true} {
			for _, t := range tracks {
				if t.Auto == auto && baseLanguage(t.Language) == base {
					return t, true
				}
			}
		}
	}
	return Track{}, false
}

// Format is one downloadable rendition of a subtitle track.
type Format struct {
	Ext string `json:"ext"`
	URL string `json:"url"`
}

// Choice is the outcome of SelectSubtitle.
type Choice struct {
	Language string
	Auto     bool
	Format   Format
}

// SelectSubtitle applies the extraction tool policy over manual and
// automatic subtitle maps keyed by language tag: exact match in
// preference order, then the first tag starting with a preferred tag,
// then the first available track. Manual tracks shadow automatic ones
// with the same tag and come first in "first available" order.
func SelectSubtitle(manual, auto map[string][]Format, langs []string) (Choice, bool) {
	keys := orderedKeys(manual, auto)
	if len(keys) == 0 {
		return Choice{}, false
	}

	pick := ""
	for _, lang := range langs {
		if _, _, ok := lookup(manual, auto, lang); ok {
			pick = lang
			break
		}
	}
	if pick == "" {
		for _, lang := range langs {
			for _, k := range keys {
				if lang != "" && strings.HasPrefix(k, lang) {
					pick = k
					break
				}
			}
			if pick != "" {
				break
			}
		}
	}
	if pick == "" {
		pick = keys[0]
	}

	formats, isAuto, _ := lookup(manual, auto, pick)
	f, ok := preferVTT(formats)
	if !ok {
		return Choice{}, false
	}
	return Choice{Language: pick, Auto: isAuto, Format: f}, true
}

func lookup(manual, auto map[string][]Format, lang string) (formats []Format, isAuto, ok bool) {
	if f := manual[lang]; len(f) > 0 {
		return f, false, true
	}
	if f := auto[lang]; len(f) > 0 {
		return f, true, true
	}
	return nil, false, false
}

func orderedKeys(manual, auto map[string][]Format) []string {
	var m, a []string
	for k, f := range manual {
		if len(f) > 0 {
			m = append(m, k)
		}
	}
	for k, f := range auto {
		if len(f) == 0 {
			continue
		}
		if fm, dup := manual[k]; dup && len(fm) > 0 {
			continue
		}
		a = append(a, k)
	}
	sort.Strings(m)
	sort.Strings(a)
	return append(m, a...)
}

func preferVTT(formats []Format) (Format, bool) {
	for _, f := range formats {
		if f.Ext == "vtt" && f.URL != "" {
			return f, true
		}
	}
	for _, f := range formats {
		if f.URL != "" {
			return f, true
		}
	}
	return Format{}, false
}

func baseLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		return tag[:i]
	}
	return tag
}
