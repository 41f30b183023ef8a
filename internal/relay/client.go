package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"seolens/internal/models"
)

// Actions accepted by the processing service.
const (
	ActionProcess = "process"
	ActionAnalyze = "analyze"
)

const defaultSubmitTimeout = 5 * time.Minute

// VideoUpload is a file captured from the caller's multipart request.
type VideoUpload struct {
	Filename string
	Content  []byte
}

// Submission is one request forwarded to the processing service. Exactly one
// of Video or Link must be set.
type Submission struct {
	Action string
	Link   string
	Video  *VideoUpload
}

// Result is the decoded shape of a processing response. Every field is
// optional; the service omits whatever a given action does not produce.
type Result struct {
	VideoPath      *string                `json:"video_path,omitempty"`
	Transcription  *string                `json:"transcription,omitempty"`
	Keywords       []string               `json:"keywords,omitempty"`
	SEODescription *string                `json:"seo_description,omitempty"`
	Rankings       []models.RankingEntry  `json:"rankings,omitempty"`
	Analytics      *models.VideoAnalytics `json:"analytics,omitempty"`
	Logs           []string               `json:"logs,omitempty"`
}

// Outcome carries the upstream response verbatim alongside the decoded form.
// Body is relayed to the caller untouched; Result drives persistence.
type Outcome struct {
	Body        []byte
	ContentType string
	Result      Result
}

// UpstreamError reports a failed processing call. StatusCode is zero when the
// request never produced an HTTP response.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("processing service unreachable: %s", e.Message)
	}
	return fmt.Sprintf("processing service returned %d: %s", e.StatusCode, e.Message)
}

// Client forwards submissions to the processing service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout overrides the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a relay client for the processing service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("processing service URL is required")
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultSubmitTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Submit forwards the submission and returns the upstream response. The body
// is returned verbatim whenever the service answers 200; any other status or
// a transport failure yields an UpstreamError.
func (c *Client) Submit(ctx context.Context, submission Submission) (Outcome, error) {
	switch submission.Action {
	case ActionProcess:
		if submission.Video == nil {
			return Outcome{}, fmt.Errorf("action %s requires a video upload", ActionProcess)
		}
		if submission.Link != "" {
			return Outcome{}, fmt.Errorf("action %s does not accept a link", ActionProcess)
		}
	case ActionAnalyze:
		if submission.Link == "" {
			return Outcome{}, fmt.Errorf("action %s requires a link", ActionAnalyze)
		}
		if submission.Video != nil {
			return Outcome{}, fmt.Errorf("action %s does not accept a video upload", ActionAnalyze)
		}
	default:
		return Outcome{}, fmt.Errorf("unsupported action %q", submission.Action)
	}

	body, contentType, err := encodeSubmission(submission)
	if err != nil {
		return Outcome{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", body)
	if err != nil {
		return Outcome{}, fmt.Errorf("build processing request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{}, &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, &UpstreamError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return Outcome{}, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(payload),
		}
	}

	outcome := Outcome{
		Body:        payload,
		ContentType: resp.Header.Get("Content-Type"),
	}
	// Ignore decode errors: the body is relayed verbatim regardless, and a
	// non-JSON success simply has nothing to persist.
	_ = json.Unmarshal(payload, &outcome.Result)
	return outcome, nil
}

func encodeSubmission(submission Submission) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	if err := writer.WriteField("action", submission.Action); err != nil {
		return nil, "", fmt.Errorf("encode action field: %w", err)
	}
	if submission.Video != nil {
		name := submission.Video.Filename
		if name == "" {
			name = "upload"
		}
		part, err := writer.CreateFormFile("video", name)
		if err != nil {
			return nil, "", fmt.Errorf("encode video part: %w", err)
		}
		if _, err := part.Write(submission.Video.Content); err != nil {
			return nil, "", fmt.Errorf("encode video content: %w", err)
		}
	} else if err := writer.WriteField("youtubeLink", submission.Link); err != nil {
		return nil, "", fmt.Errorf("encode youtubeLink field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return buf, writer.FormDataContentType(), nil
}

func upstreamMessage(payload []byte) string {
	var decoded struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &decoded); err == nil && decoded.Error != "" {
		return decoded.Error
	}
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return "processing failed"
	}
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}
