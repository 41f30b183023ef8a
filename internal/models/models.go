package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// User is an account stored by the credential store. The username is unique
// and immutable after creation; PasswordHash is a bcrypt hash and is never
// serialized into API responses.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Metric holds a statistic that upstream services report either as a JSON
// number or as a decimal string (the YouTube Data API returns counters as
// strings). The original lexical form is preserved so persisted records
// round-trip exactly.
type Metric struct {
	raw json.RawMessage
}

// MetricFromString constructs a Metric from its string representation.
func MetricFromString(value string) Metric {
	return Metric{raw: json.RawMessage(strconv.Quote(value))}
}

// MetricFromInt constructs a Metric carrying a plain JSON number.
func MetricFromInt(value int64) Metric {
	return Metric{raw: json.RawMessage(strconv.FormatInt(value, 10))}
}

// String returns the metric value without JSON quoting.
func (m Metric) String() string {
	if len(m.raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.raw, &s); err == nil {
		return s
	}
	return string(m.raw)
}

// Int64 parses the metric as an integer when possible.
func (m Metric) Int64() (int64, bool) {
	value, err := strconv.ParseInt(m.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// MarshalJSON emits the value exactly as it arrived from upstream.
func (m Metric) MarshalJSON() ([]byte, error) {
	if len(m.raw) == 0 {
		return []byte("null"), nil
	}
	return append([]byte(nil), m.raw...), nil
}

// UnmarshalJSON accepts a JSON string, number, or null.
func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		m.raw = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.raw = append([]byte(nil), data...)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		m.raw = append([]byte(nil), data...)
		return nil
	}
	return fmt.Errorf("metric must be a string or a number, got %s", data)
}

// VideoAnalytics is the statistics snapshot the processing service returns for
// an analyzed link. Every field is optional; absent keys stay absent.
type VideoAnalytics struct {
	Title     *string `json:"title,omitempty"`
	Views     *Metric `json:"views,omitempty"`
	Likes     *Metric `json:"likes,omitempty"`
	Comments  *Metric `json:"comments,omitempty"`
	Published *string `json:"published,omitempty"`
}

// RankingEntry is a single keyword ranking computed by the processing service.
type RankingEntry struct {
	Keyword       string  `json:"keyword"`
	Rank          int     `json:"rank"`
	Score         float64 `json:"score"`
	TopVideoTitle string  `json:"top_video_title,omitempty"`
	TopVideoID    string  `json:"top_video_id,omitempty"`
}

// ResultRecord is the persisted outcome of one successful relay, owned by the
// submitting user. Optional fields mirror exactly the keys present in the
// upstream response; nothing is null-padded. Records are append-only.
type ResultRecord struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	VideoPath      *string         `json:"video_path,omitempty"`
	Transcription  *string         `json:"transcription,omitempty"`
	Keywords       []string        `json:"keywords,omitempty"`
	SEODescription *string         `json:"seo_description,omitempty"`
	Rankings       []RankingEntry  `json:"youtube_rankings,omitempty"`
	Analytics      *VideoAnalytics `json:"youtube_analytics,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// HasPayload reports whether the record carries at least one of the payloads
// that justify persisting it.
func (r ResultRecord) HasPayload() bool {
	return r.Transcription != nil || r.Analytics != nil
}
