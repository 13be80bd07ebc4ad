package server

import (
	"net/http"

	"github.com/book-expert/story-service/internal/story"
	"github.com/gorilla/websocket"
)

const (
	eventStage  = "stage"
	eventResult = "result"
	eventError  = "error"
)

// progressEvent is one WebSocket message of a generation.
type progressEvent struct {
	Event  string `json:"event"`
	Stage  string `json:"stage,omitempty"`
	Status string `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
	*StoryResponse
}

// RegisterWSRoutes adds GET /ws/generate-story. Each JSON request received on
// the connection runs one job and streams its stage transitions.
func RegisterWSRoutes(mux *http.ServeMux, d Dependencies) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get(headerOrigin)

			return origin == "" || originAllowed(origin, d.AllowedOrigin)
		},
	}

	mux.HandleFunc("GET /ws/generate-story", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			d.Logger.Warn("WebSocket upgrade failed: %v", err)

			return
		}
		defer conn.Close()

		for {
			var body GenerateRequest

			readErr := conn.ReadJSON(&body)
			if readErr != nil {
				return
			}

			writeErr := streamGeneration(r, conn, d, body)
			if writeErr != nil {
				d.Logger.Warn("WebSocket client went away: %v", writeErr)

				return
			}
		}
	})
}

func streamGeneration(r *http.Request, conn *websocket.Conn, d Dependencies, body GenerateRequest) error {
	req, validateErr := toStoryRequest(body)
	if validateErr != nil {
		return conn.WriteJSON(progressEvent{Event: eventError, Detail: validateErr.Error()})
	}

	var writeErr error

	req.OnStage = func(stage story.Stage, status story.StageStatus) {
		if writeErr == nil {
			writeErr = conn.WriteJSON(progressEvent{Event: eventStage, Stage: string(stage), Status: string(status)})
		}
	}

	result, runErr := d.Generator.Run(r.Context(), req)
	if writeErr != nil {
		return writeErr
	}

	if runErr != nil {
		d.Logger.Error("WebSocket generation failed: %v", runErr)

		_, detail := describeRunError(runErr)

		return conn.WriteJSON(progressEvent{Event: eventError, Stage: failedStageName(runErr), Detail: detail})
	}

	response := newStoryResponse(result)

	return conn.WriteJSON(progressEvent{Event: eventResult, StoryResponse: &response})
}

func failedStageName(err error) string {
	stage, _ := story.FailedStage(err)

	return string(stage)
}
