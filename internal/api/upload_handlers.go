package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"seolens/internal/models"
	"seolens/internal/relay"
)

type uploadSubmission struct {
	action string
	link   string
	video  *relay.VideoUpload
}

// Upload validates a caller submission, forwards it to the processing
// service, and relays the upstream JSON body back verbatim. Responses that
// carry a transcript or analytics are durably recorded for the caller before
// the relay is acknowledged.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	submission, err := h.parseUploadForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Validation is complete: nothing is sent upstream for a request that
	// was going to fail anyway.
	recorder := h.recorder()
	recorder.RelayStarted(submission.action)

	outcome, err := h.Relay.Submit(r.Context(), relay.Submission{
		Action: submission.action,
		Link:   submission.link,
		Video:  submission.video,
	})
	if err != nil {
		recorder.RelayFailed(submission.action)
		h.respondUpstreamError(w, r, submission.action, err)
		return
	}
	recorder.RelayCompleted(submission.action)

	if record, found := h.buildResultRecord(identity.UserID, outcome.Result); found {
		if err := h.Store.InsertResultRecord(r.Context(), record); err != nil {
			h.logger(r).Error("result record insert failed", "action", submission.action, "error", err)
			writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to record result"))
			return
		}
		recorder.ObserveResultPersisted(submission.action)
		h.logger(r).Info("result recorded", "action", submission.action)
	}

	contentType := outcome.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(outcome.Body)
}

func (h *Handler) parseUploadForm(r *http.Request) (uploadSubmission, error) {
	maxBytes := h.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)

	reader, err := r.MultipartReader()
	if err != nil {
		return uploadSubmission{}, fmt.Errorf("invalid multipart payload")
	}

	submission := uploadSubmission{}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return uploadSubmission{}, fmt.Errorf("read multipart data: %w", err)
		}
		name := part.FormName()
		if name == "" {
			_ = part.Close()
			continue
		}
		if name == "video" {
			if submission.video != nil {
				_ = part.Close()
				continue
			}
			content, readErr := io.ReadAll(part)
			_ = part.Close()
			if readErr != nil {
				return uploadSubmission{}, fmt.Errorf("read video upload: %w", readErr)
			}
			submission.video = &relay.VideoUpload{
				Filename: part.FileName(),
				Content:  content,
			}
			continue
		}
		payload, readErr := io.ReadAll(part)
		_ = part.Close()
		if readErr != nil {
			return uploadSubmission{}, fmt.Errorf("read form field: %w", readErr)
		}
		value := strings.TrimSpace(string(payload))
		switch name {
		case "action":
			submission.action = value
		case "youtubeLink":
			submission.link = value
		}
	}

	switch submission.action {
	case "":
		return uploadSubmission{}, fmt.Errorf("action is required")
	case relay.ActionProcess:
		if submission.video == nil {
			return uploadSubmission{}, fmt.Errorf("video file is required for action process")
		}
		// A stray youtubeLink alongside a process upload is ignored.
		submission.link = ""
	case relay.ActionAnalyze:
		if submission.link == "" {
			return uploadSubmission{}, fmt.Errorf("youtubeLink is required for action analyze")
		}
		submission.video = nil
	default:
		return uploadSubmission{}, fmt.Errorf("unsupported action %q", submission.action)
	}
	return submission, nil
}

func (h *Handler) respondUpstreamError(w http.ResponseWriter, r *http.Request, action string, err error) {
	var upstream *relay.UpstreamError
	if errors.As(err, &upstream) {
		if upstream.StatusCode == 0 {
			// Transport errors name internal endpoints; callers only get the
			// generic message.
			h.logger(r).Error("relay unreachable", "action", action, "error", upstream.Message)
			writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to process request"))
			return
		}
		h.logger(r).Error("relay failed", "action", action, "upstream_status", upstream.StatusCode, "error", upstream.Message)
		writeError(w, upstream.StatusCode, fmt.Errorf("%s", upstream.Message))
		return
	}
	h.logger(r).Error("relay failed", "action", action, "error", err)
	writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to process request"))
}

func (h *Handler) buildResultRecord(userID string, result relay.Result) (models.ResultRecord, bool) {
	record := models.ResultRecord{
		UserID:         userID,
		VideoPath:      result.VideoPath,
		Transcription:  result.Transcription,
		Keywords:       result.Keywords,
		SEODescription: result.SEODescription,
		Rankings:       result.Rankings,
		Analytics:      result.Analytics,
		CreatedAt:      time.Now().UTC(),
	}
	if !record.HasPayload() {
		return models.ResultRecord{}, false
	}
	return record, true
}

// History lists the caller's stored result records, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	records, err := h.Store.ListResultRecords(r.Context(), identity.UserID)
	if err != nil {
		h.logger(r).Error("history lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to load history"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": records})
}
