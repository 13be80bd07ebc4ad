// Package worker provides a NATS request/reply entry point for story jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/story-service/internal/core"
	"github.com/book-expert/story-service/internal/story"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	defaultJobTimeout = 10 * time.Minute
	drainTimeout      = 30 * time.Second
	queueGroup        = "story-service"
)

// ErrShuttingDown is returned to requests that arrive after the worker stopped accepting jobs.
var ErrShuttingDown = errors.New("story worker is shutting down")

// Runner executes one story job.
type Runner interface {
	Run(ctx context.Context, req story.Request) (story.Result, error)
}

// StoryRequestedEvent asks the service to produce a narrated story.
type StoryRequestedEvent struct {
	Header events.EventHeader `json:"header"`
	Topic  string             `json:"topic"`
	Length string             `json:"length,omitempty"`
}

// StoryCompletedEvent is the reply to a StoryRequestedEvent. On failure
// Error is set and FailedStage names the stage when one was reached.
type StoryCompletedEvent struct {
	Header           events.EventHeader `json:"header"`
	SessionID        string             `json:"session_id,omitempty"`
	Story            string             `json:"story,omitempty"`
	MusicDescription string             `json:"music_description,omitempty"`
	DurationSeconds  float64            `json:"duration_seconds,omitempty"`
	AudioKey         string             `json:"audio_key,omitempty"`
	FailedStage      string             `json:"failed_stage,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// NatsWorker listens for story requests on a NATS subject and replies with the outcome.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	runner         Runner
	log            *logger.Logger
	jobTimeout     time.Duration
	ready          chan struct{}

	mu       sync.Mutex
	stopping bool
	jobs     sync.WaitGroup
}

// NewNatsWorker creates a worker. A non-positive jobTimeout selects ten minutes.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	runner Runner,
	log *logger.Logger,
	jobTimeout time.Duration,
) *NatsWorker {
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		runner:         runner,
		log:            log,
		jobTimeout:     jobTimeout,
		ready:          make(chan struct{}),
	}
}

// Ready is closed once the subscription is active.
func (w *NatsWorker) Ready() <-chan struct{} {
	return w.ready
}

// Run subscribes and serves requests until ctx is cancelled, then drains the
// subscription and waits for in-flight jobs. Each message runs in its own goroutine.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.QueueSubscribe(w.subject, queueGroup, func(msg *nats.Msg) {
		if !w.startJob() {
			w.reply(msg, &StoryCompletedEvent{Header: replyHeader(events.EventHeader{}), Error: ErrShuttingDown.Error()})

			return
		}

		go func() {
			defer w.jobs.Done()

			w.handleMessage(ctx, msg)
		}()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	flushErr := w.natsConnection.Flush()
	if flushErr != nil {
		return fmt.Errorf("failed to flush subscription to subject %s: %w", w.subject, flushErr)
	}

	close(w.ready)
	w.log.Info("Listening for story requests on %s", w.subject)

	<-ctx.Done()

	drainErr := w.drain(sub)

	w.mu.Lock()
	w.stopping = true
	w.mu.Unlock()

	w.jobs.Wait()

	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

// startJob registers a job unless the worker has stopped accepting them.
func (w *NatsWorker) startJob() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopping {
		return false
	}

	w.jobs.Add(1)

	return true
}

// drain flushes pending messages to the handler and waits until the
// subscription is closed, so every delivered message has been registered.
func (w *NatsWorker) drain(sub *nats.Subscription) error {
	closed := sub.StatusChanged(nats.SubscriptionClosed)

	drainErr := sub.Drain()
	if drainErr != nil {
		return drainErr
	}

	select {
	case <-closed:
	case <-time.After(drainTimeout):
		w.log.Warn("Subscription on %s did not close within %s", w.subject, drainTimeout)
	}

	return nil
}

func (w *NatsWorker) handleMessage(parent context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.jobTimeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse story request: %v", err)
		w.reply(msg, &StoryCompletedEvent{Header: replyHeader(events.EventHeader{}), Error: err.Error()})

		return
	}

	w.reply(msg, w.processStoryJob(ctx, event))
}

// processStoryJob runs the pipeline for event and converts the outcome into a reply.
func (w *NatsWorker) processStoryJob(ctx context.Context, event *StoryRequestedEvent) *StoryCompletedEvent {
	reply := &StoryCompletedEvent{Header: replyHeader(event.Header)}

	length, err := core.ParseLength(event.Length)
	if err != nil {
		reply.Error = err.Error()

		return reply
	}

	result, err := w.runner.Run(ctx, story.Request{Topic: event.Topic, Length: length})
	if err != nil {
		w.log.Error("Story job for workflow %s failed: %v", event.Header.WorkflowID, err)

		reply.Error = err.Error()

		stage, found := story.FailedStage(err)
		if found {
			reply.FailedStage = string(stage)
		}

		return reply
	}

	reply.SessionID = result.SessionID
	reply.Story = result.Story
	reply.MusicDescription = result.MusicDescription
	reply.DurationSeconds = result.SpeechDurationSeconds
	reply.AudioKey = story.ArchiveKey(result.SessionID)

	return reply
}

// reply marshals and responds with the completion event when the sender expects one.
func (w *NatsWorker) reply(msg *nats.Msg, replyEvent *StoryCompletedEvent) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		w.log.Error("Failed to marshal reply event: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", replyEvent.Header.WorkflowID, err)
	}
}

func parseEvent(msg *nats.Msg) (*StoryRequestedEvent, error) {
	var event StoryRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

// replyHeader keeps the workflow identity of the request and stamps a new event.
func replyHeader(request events.EventHeader) events.EventHeader {
	header := request
	header.EventID = uuid.NewString()
	header.Timestamp = time.Now()

	return header
}
