package youtube

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/forPelevin/scribe/internal/types"
)

const maxDescription = 500

// Service looks up video metadata through the YouTube Data API.
type Service struct {
	youtube *youtube.Service
}

func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Service, error) {
	if apiKey == "" {
		return nil, errors.New("youtube api key is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	yt, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Service{youtube: yt}, nil
}

func (s *Service) Lookup(ctx context.Context, videoID string) (types.VideoInfo, error) {
	part := []string{"snippet", "contentDetails", "statistics"}
	response, err := s.youtube.Videos.List(part).Id(videoID).Context(ctx).Do()
	if err != nil {
		return types.VideoInfo{}, fmt.Errorf("youtube videos.list: %w", err)
	}
	if len(response.Items) == 0 {
		return types.VideoInfo{}, fmt.Errorf("video %s not found", videoID)
	}
	return toInfo(response.Items[0]), nil
}

func toInfo(v *youtube.Video) types.VideoInfo {
	info := types.VideoInfo{ID: v.Id}
	if sn := v.Snippet; sn != nil {
		info.Title = sn.Title
		info.Channel = sn.ChannelTitle
		info.UploadDate = uploadDate(sn.PublishedAt)
		desc := []rune(sn.Description)
		if len(desc) > maxDescription {
			desc = desc[:maxDescription]
		}
		info.Description = string(desc)
		if th := sn.Thumbnails; th != nil {
			for _, t := range []*youtube.Thumbnail{th.Maxres, th.High, th.Medium, th.Default} {
				if t != nil && t.Url != "" {
					info.Thumbnail = t.Url
					break
				}
			}
		}
	}
	if cd := v.ContentDetails; cd != nil {
		info.Duration, _ = ISO8601Seconds(cd.Duration)
	}
	if st := v.Statistics; st != nil {
		info.ViewCount = int64(st.ViewCount)
	}
	return info
}

// uploadDate converts an RFC 3339 timestamp to YYYYMMDD.
func uploadDate(publishedAt string) string {
	if len(publishedAt) < 10 {
		return ""
	}
	return strings.ReplaceAll(publishedAt[:10], "-", "")
}

var validISO8601 = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ISO8601Seconds converts durations like PT1H2M3S or P1DT5M to seconds.
func ISO8601Seconds(d string) (int, error) {
	m := validISO8601.FindStringSubmatch(d)
	if m == nil || d == "P" || d == "PT" {
		return 0, fmt.Errorf("invalid duration format: %s", d)
	}
	days, _ := strconv.Atoi(m[1])
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	sec, _ := strconv.ParseFloat(m[4], 64)
	return days*86400 + hours*3600 + minutes*60 + int(sec), nil
}
