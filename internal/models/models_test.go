package models

import (
	"encoding/json"
	"testing"
)

func TestMetricRoundTripsLexicalForm(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{name: "number", input: `10`},
		{name: "string", input: `"10"`},
		{name: "non numeric string", input: `"N/A"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m Metric
			if err := json.Unmarshal([]byte(tc.input), &m); err != nil {
				t.Fatalf("unmarshal %s: %v", tc.input, err)
			}
			out, err := json.Marshal(m)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(out) != tc.input {
				t.Fatalf("expected %s to round-trip, got %s", tc.input, out)
			}
		})
	}
}

func TestMetricRejectsObjects(t *testing.T) {
	var m Metric
	if err := json.Unmarshal([]byte(`{"count":1}`), &m); err == nil {
		t.Fatal("expected object payload to be rejected")
	}
}

func TestMetricInt64(t *testing.T) {
	var m Metric
	if err := json.Unmarshal([]byte(`"42"`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	value, ok := m.Int64()
	if !ok || value != 42 {
		t.Fatalf("expected 42, got %d (ok=%v)", value, ok)
	}
	if _, ok := MetricFromString("N/A").Int64(); ok {
		t.Fatal("expected non-numeric metric to fail integer parsing")
	}
}

func TestResultRecordOmitsAbsentFields(t *testing.T) {
	transcript := "hello world"
	record := ResultRecord{
		ID:            "rec-1",
		UserID:        "user-1",
		Transcription: &transcript,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, absent := range []string{"keywords", "seo_description", "youtube_rankings", "youtube_analytics", "video_path"} {
		if _, ok := decoded[absent]; ok {
			t.Fatalf("expected %s to be omitted, got %s", absent, payload)
		}
	}
	if _, ok := decoded["transcription"]; !ok {
		t.Fatal("expected transcription to be present")
	}
}

func TestHasPayload(t *testing.T) {
	if (ResultRecord{}).HasPayload() {
		t.Fatal("empty record should not report a payload")
	}
	transcript := "t"
	if !(ResultRecord{Transcription: &transcript}).HasPayload() {
		t.Fatal("transcription should count as payload")
	}
	if !(ResultRecord{Analytics: &VideoAnalytics{}}).HasPayload() {
		t.Fatal("analytics should count as payload")
	}
	if (ResultRecord{Keywords: []string{"seo"}}).HasPayload() {
		t.Fatal("keywords alone should not count as payload")
	}
}
