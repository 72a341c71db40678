package innertube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/scribe/internal/domain/captions"
	"github.com/forPelevin/scribe/internal/netx"
	"github.com/forPelevin/scribe/internal/types"
)

const (
	DefaultBaseURL = "https://www.youtube.com"

	androidVersion = "20.10.38"
	androidUA      = "com.google.android.youtube/" + androidVersion + " (Linux; U; Android 11) gzip"
)

// AllowedHosts are accepted for a configured base URL override.
var AllowedHosts = []string{"www.youtube.com", "youtube.com", "youtubei.googleapis.com"}

type playerReq struct {
	VideoID        string    `json:"videoId"`
	Context        playerCtx `json:"context"`
	RacyCheckOk    bool      `json:"racyCheckOk"`
	ContentCheckOk bool      `json:"contentCheckOk"`
}

type playerCtx struct {
	Client clientInfo `json:"client"`
}

type clientInfo struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

type playerResp struct {
	Captions *struct {
		Renderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
	Name         struct {
		SimpleText string `json:"simpleText"`
		Runs       []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"name"`
}

// Tier lists caption tracks through the player endpoint and downloads the
// selected one as WebVTT.
type Tier struct {
	baseURL string
	http    *netx.Client
	log     logrus.FieldLogger
}

func New(baseURL string, client *netx.Client, log logrus.FieldLogger) *Tier {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tier{baseURL: baseURL, http: client, log: log}
}

func (t *Tier) Name() string { return "structured-api" }

func (t *Tier) Fetch(ctx context.Context, videoID string, langs []string) types.CaptionResult {
	log := t.log.WithFields(logrus.Fields{"tier": t.Name(), "video_id": videoID})

	tracks, reason, err := t.listTracks(ctx, videoID)
	if err != nil {
		log.WithError(err).Warn("list caption tracks failed")
		return types.Failed(err)
	}
	if len(tracks) == 0 {
		log.WithField("reason", reason).Info("no caption tracks")
		return types.Absent()
	}

	track, ok := captions.SelectTrack(tracks, langs)
	if !ok {
		log.WithField("langs", langs).Info("no caption track in preferred languages")
		return types.Absent()
	}

	raw, err := t.http.Get(ctx, vttURL(track.URL), nil)
	if err != nil {
		log.WithError(err).WithField("lang", track.Language).Warn("download caption track failed")
		return types.Failed(err)
	}
	tr, ok := captions.Parse(string(raw), track.Language)
	if !ok {
		log.WithField("lang", track.Language).Info("caption track has no usable cues")
		return types.Absent()
	}
	tr.Provenance = track.Provenance()
	log.WithFields(logrus.Fields{"lang": track.Language, "segments": len(tr.Segments), "auto": track.Auto}).Info("caption track found")
	return types.Found(tr)
}

// listTracks returns the server-fetchable tracks. A nil slice with a reason
// means the video has no captions or is unavailable.
func (t *Tier) listTracks(ctx context.Context, videoID string) ([]captions.Track, string, error) {
	body, err := json.Marshal(playerReq{
		VideoID: videoID,
		Context: playerCtx{Client: clientInfo{
			ClientName:        "ANDROID",
			ClientVersion:     androidVersion,
			AndroidSdkVersion: 30,
			Hl:                "en",
			Gl:                "US",
		}},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return nil, "", err
	}

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", androidUA)
	h.Set("X-Youtube-Client-Name", "3")
	h.Set("X-Youtube-Client-Version", androidVersion)

	raw, err := t.http.Post(ctx, t.baseURL+"/youtubei/v1/player?prettyPrint=false", body, h)
	if err != nil {
		return nil, "", fmt.Errorf("player: %w", err)
	}

	var pr playerResp
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, "", fmt.Errorf("decode player: %w", err)
	}
	if pr.PlayabilityStatus != nil && pr.PlayabilityStatus.Status != "" && pr.PlayabilityStatus.Status != "OK" {
		return nil, pr.PlayabilityStatus.Status + ": " + pr.PlayabilityStatus.Reason, nil
	}
	if pr.Captions == nil {
		return nil, "captions disabled", nil
	}

	var out []captions.Track
	for _, ct := range pr.Captions.Renderer.CaptionTracks {
		if ct.BaseURL == "" || needsPoToken(ct.BaseURL) {
			continue
		}
		out = append(out, captions.Track{
			Language: ct.LanguageCode,
			Auto:     ct.Kind == "asr",
			URL:      ct.BaseURL,
			Name:     trackName(ct),
		})
	}
	if len(out) == 0 && len(pr.Captions.Renderer.CaptionTracks) > 0 {
		return nil, "all caption tracks require a proof-of-origin token", nil
	}
	return out, "no tracks", nil
}

// needsPoToken reports whether a track URL only works in a browser.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

func trackName(ct captionTrack) string {
	if ct.Name.SimpleText != "" {
		return ct.Name.SimpleText
	}
	var parts []string
	for _, r := range ct.Name.Runs {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "")
}

func vttURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("fmt", "vtt")
	u.RawQuery = q.Encode()
	return u.String()
}
