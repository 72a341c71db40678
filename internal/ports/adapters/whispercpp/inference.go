package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/scribe/internal/domain/languages"
	"github.com/forPelevin/scribe/internal/netx"
	"github.com/forPelevin/scribe/internal/types"
)

// inferenceResponse mirrors whisper-server's verbose_json output.
type inferenceResponse struct {
	Language         string  `json:"language"`
	DetectedLanguage string  `json:"detected_language"`
	Duration         float64 `json:"duration"`
	Text             string  `json:"text"`
	Error            string  `json:"error"`
	Segments         []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// transcript trims segment text, drops empty segments and joins the rest
// with single spaces.
func (r inferenceResponse) transcript(requested string) types.Transcript {
	var tr types.Transcript
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		end := s.End
		if end < s.Start {
			end = s.Start
		}
		tr.Segments = append(tr.Segments, types.Segment{Start: s.Start, End: end, Text: text})
		parts = append(parts, text)
	}
	tr.Text = strings.Join(parts, " ")

	switch {
	case r.DetectedLanguage != "":
		tr.Language = languages.Normalize(r.DetectedLanguage)
	case r.Language != "":
		tr.Language = languages.Normalize(r.Language)
	default:
		tr.Language = requested
	}
	tr.Duration = r.Duration
	return tr
}

// infer streams wavPath to /inference with deterministic decoding.
func infer(ctx context.Context, baseURL, wavPath, language string) (inferenceResponse, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return inferenceResponse{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	if language == "" {
		language = "auto"
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(wavPath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		_ = writer.WriteField("response_format", "verbose_json")
		_ = writer.WriteField("temperature", "0.0")
		_ = writer.WriteField("temperature_inc", "0.0")
		_ = writer.WriteField("language", language)
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/inference", pr)
	if err != nil {
		pr.Close()
		return inferenceResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return inferenceResponse{}, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return inferenceResponse{}, fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return inferenceResponse{}, fmt.Errorf("inference status %d: %s", resp.StatusCode, netx.Truncate(string(body), 200))
	}

	var out inferenceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return inferenceResponse{}, fmt.Errorf("decode inference response: %w", err)
	}
	if out.Error != "" {
		return inferenceResponse{}, fmt.Errorf("inference error: %s", out.Error)
	}
	return out, nil
}
