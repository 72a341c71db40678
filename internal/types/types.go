package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Provenance records which acquisition path produced a transcript.
type Provenance string

const (
	ProvenanceManual     Provenance = "manual-caption"
	ProvenanceAuto       Provenance = "auto-caption"
	ProvenanceExtraction Provenance = "extraction-tool-caption"

	recognitionPrefix = "recognition-engine:"
)

func RecognitionProvenance(model string) Provenance {
	return Provenance(recognitionPrefix + model)
}

func (p Provenance) IsRecognition() bool {
	return strings.HasPrefix(string(p), recognitionPrefix)
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Transcript struct {
	Text       string     `json:"text"`
	Segments   []Segment  `json:"segments"`
	Language   string     `json:"language"`
	Duration   float64    `json:"duration"`
	Provenance Provenance `json:"provenance"`
}

// WordCount counts whitespace separated tokens of the flat text.
func (t Transcript) WordCount() int {
	return len(strings.Fields(t.Text))
}

type AudioAsset struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type VideoInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Duration    int    `json:"duration"`
	Channel     string `json:"channel"`
	UploadDate  string `json:"upload_date,omitempty"`
	ViewCount   int64  `json:"view_count,omitempty"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// PlaceholderInfo is returned when metadata lookup fails.
func PlaceholderInfo(id string) VideoInfo {
	return VideoInfo{ID: id, Title: "Video " + id, Channel: "Unknown"}
}

// MarshalBinary lets the redis client store VideoInfo values.
func (v VideoInfo) MarshalBinary() ([]byte, error) {
	return json.Marshal(v)
}

func (v *VideoInfo) UnmarshalBinary(b []byte) error {
	return json.Unmarshal(b, v)
}

type TranscribeOptions struct {
	Language          string
	IncludeTimestamps bool
}

// CaptionStatus distinguishes a definitive miss from a transient failure.
type CaptionStatus int

const (
	CaptionAbsent CaptionStatus = iota
	CaptionFound
	CaptionFailed
)

func (s CaptionStatus) String() string {
	switch s {
	case CaptionFound:
		return "found"
	case CaptionFailed:
		return "failed"
	default:
		return "absent"
	}
}

type CaptionResult struct {
	Status     CaptionStatus
	Transcript Transcript
	Err        error
}

func Found(tr Transcript) CaptionResult { return CaptionResult{Status: CaptionFound, Transcript: tr} }
func Absent() CaptionResult             { return CaptionResult{Status: CaptionAbsent} }
func Failed(err error) CaptionResult    { return CaptionResult{Status: CaptionFailed, Err: err} }

// ModelHandle describes the recognition model currently held by the engine.
type ModelHandle struct {
	ModelName string `json:"model_name"`
	Device    string `json:"device"`
	Precision string `json:"precision"`
	Loaded    bool   `json:"loaded"`
}
