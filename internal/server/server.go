// Package server exposes the story pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/story-service/internal/core"
	"github.com/book-expert/story-service/internal/story"
)

const (
	headerContentType        = "Content-Type"
	headerContentDisposition = "Content-Disposition"
	contentTypeJSON          = "application/json"
	contentTypeMPEG          = "audio/mpeg"
	maxRequestBytes          = 1 << 16
	healthMessage            = "Story Audio Generator API is running"
	audioNotFoundDetail      = "Audio file not found"
	errFmtGeneration         = "Error generating story: %v"
)

// Generator runs one story job.
type Generator interface {
	Run(ctx context.Context, req story.Request) (story.Result, error)
}

// AudioSource opens the finished audio of a session.
type AudioSource interface {
	Open(ctx context.Context, sessionID string) (io.ReadCloser, error)
}

// Dependencies are the collaborators behind the HTTP routes.
type Dependencies struct {
	Generator Generator
	Audio     AudioSource
	Logger    *logger.Logger
	// AllowedOrigin restricts CORS and WebSocket origins. Empty allows any origin.
	AllowedOrigin string
}

// GenerateRequest is the body of POST /generate-story.
type GenerateRequest struct {
	Topic  string `json:"topic"`
	Length string `json:"length"`
}

// StoryResponse is returned by a successful generation.
type StoryResponse struct {
	Story            string  `json:"story"`
	MusicDescription string  `json:"music_description"`
	Duration         float64 `json:"duration"`
	AudioURL         string  `json:"audio_url"`
	SessionID        string  `json:"session_id"`
}

// noModTime leaves Last-Modified unset on served audio.
var noModTime time.Time

type errorResponse struct {
	Detail string `json:"detail"`
}

// NewHandler returns the routes wrapped in the CORS policy.
func NewHandler(d Dependencies) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, d)
	RegisterWSRoutes(mux, d)

	return withCORS(mux, d.AllowedOrigin)
}

// RegisterRoutes adds the health, generation and audio routes to mux.
func RegisterRoutes(mux *http.ServeMux, d Dependencies) {
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": healthMessage})
	})

	mux.HandleFunc("POST /generate-story", func(w http.ResponseWriter, r *http.Request) {
		handleGenerate(w, r, d)
	})

	mux.HandleFunc("GET /audio/{sessionId}", func(w http.ResponseWriter, r *http.Request) {
		handleAudio(w, r, d)
	})
}

func handleGenerate(w http.ResponseWriter, r *http.Request, d Dependencies) {
	var body GenerateRequest

	decodeErr := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&body)
	if decodeErr != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+decodeErr.Error())

		return
	}

	req, validateErr := toStoryRequest(body)
	if validateErr != nil {
		writeError(w, http.StatusBadRequest, validateErr.Error())

		return
	}

	result, runErr := d.Generator.Run(r.Context(), req)
	if runErr != nil {
		status, detail := describeRunError(runErr)
		d.Logger.Error("POST /generate-story failed: %v", runErr)
		writeError(w, status, detail)

		return
	}

	writeJSON(w, http.StatusOK, newStoryResponse(result))
}

func handleAudio(w http.ResponseWriter, r *http.Request, d Dependencies) {
	sessionID, idErr := story.CanonicalSessionID(r.PathValue("sessionId"))
	if idErr != nil {
		writeError(w, http.StatusNotFound, audioNotFoundDetail)

		return
	}

	audio, openErr := d.Audio.Open(r.Context(), sessionID)
	if openErr != nil {
		if errors.Is(openErr, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, audioNotFoundDetail)

			return
		}

		d.Logger.Error("GET /audio/%s failed: %v", sessionID, openErr)
		writeError(w, http.StatusInternalServerError, openErr.Error())

		return
	}
	defer audio.Close()

	w.Header().Set(headerContentType, contentTypeMPEG)
	w.Header().Set(headerContentDisposition, fmt.Sprintf("attachment; filename=%q", "story_"+sessionID+".mp3"))

	if seeker, isSeeker := audio.(io.ReadSeeker); isSeeker {
		http.ServeContent(w, r, "", noModTime, seeker)

		return
	}

	w.WriteHeader(http.StatusOK)

	_, copyErr := io.Copy(w, audio)
	if copyErr != nil {
		d.Logger.Warn("GET /audio/%s: failed to stream audio: %v", sessionID, copyErr)
	}
}

func toStoryRequest(body GenerateRequest) (story.Request, error) {
	length, lengthErr := core.ParseLength(body.Length)
	if lengthErr != nil {
		return story.Request{}, lengthErr
	}

	return story.ValidateRequest(story.Request{Topic: body.Topic, Length: length})
}

// describeRunError maps a pipeline error to a status code and caller-visible detail.
func describeRunError(err error) (int, string) {
	if errors.Is(err, core.ErrValidation) {
		return http.StatusBadRequest, err.Error()
	}

	return http.StatusInternalServerError, fmt.Sprintf(errFmtGeneration, err)
}

func newStoryResponse(result story.Result) StoryResponse {
	return StoryResponse{
		Story:            result.Story,
		MusicDescription: result.MusicDescription,
		Duration:         result.SpeechDurationSeconds,
		AudioURL:         "/audio/" + result.SessionID,
		SessionID:        result.SessionID,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
