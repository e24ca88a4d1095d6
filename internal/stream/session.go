// Package stream owns the lifecycle of one filtered-stream session:
// connect, consume, dispatch, disconnect.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sharmina-lina/livetweets-main/internal/events"
	"github.com/sharmina-lina/livetweets-main/internal/popularity"
	"github.com/sharmina-lina/livetweets-main/pkg/clients/firehose"
	"github.com/sharmina-lina/livetweets-main/pkg/logging"
	"github.com/sharmina-lina/livetweets-main/pkg/models"
)

// State is the session lifecycle phase
type State string

const (
	StateIdle          State = "idle"
	StateConnecting    State = "connecting"
	StateStreaming     State = "streaming"
	StateDisconnecting State = "disconnecting"
	StateErrored       State = "errored"
)

var (
	// ErrAlreadyActive is returned when starting a session that is not idle
	ErrAlreadyActive = errors.New("stream already initiated")
	// ErrNoActiveStream is returned when acting on an idle session
	ErrNoActiveStream = errors.New("no active stream")
)

// EventStream is one live stream connection
type EventStream interface {
	Next() (*firehose.PostEvent, error)
	Close() error
}

// Opener dials the filtered stream
type Opener interface {
	OpenStream(ctx context.Context, params firehose.StreamParams) (EventStream, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(ctx context.Context, params firehose.StreamParams) (EventStream, error)

// OpenStream calls the wrapped function
func (f OpenerFunc) OpenStream(ctx context.Context, params firehose.StreamParams) (EventStream, error) {
	return f(ctx, params)
}

// ClientOpener adapts the firehose client to the Opener interface
func ClientOpener(client *firehose.Client) Opener {
	return OpenerFunc(func(ctx context.Context, params firehose.StreamParams) (EventStream, error) {
		return client.OpenStream(ctx, params)
	})
}

// ruleSyncer is the slice of the rule manager the session needs
type ruleSyncer interface {
	SyncFromRemote(ctx context.Context) ([]models.Rule, error)
}

// ingestor is the slice of the ingestion pipeline the session needs
type ingestor interface {
	Ingest(ctx context.Context, post *firehose.Post) error
	SaveIncludes(ctx context.Context, includes *firehose.Includes)
}

// ranker is the slice of the popularity ranker the session needs
type ranker interface {
	Top10(ctx context.Context) (popularity.Lists, error)
}

// engagementTracker is the slice of the tracker the session needs
type engagementTracker interface {
	Start(ctx context.Context, startTime time.Time)
	Stop()
	Tracking() bool
}

// Session is one filtered-stream connection lifecycle. All transitions
// are mutex-guarded; consumption runs in its own goroutine between
// OpenFilter and Stop.
type Session struct {
	opener     Opener
	rules      ruleSyncer
	ingest     ingestor
	popularity ranker
	tracker    engagementTracker
	publisher  events.Publisher
	logger     logging.Logger

	mu     sync.Mutex
	state  State
	stream EventStream
	cancel context.CancelFunc
}

// NewSession creates an idle session
func NewSession(opener Opener, rules ruleSyncer, ingest ingestor, ranker ranker, tracker engagementTracker, publisher events.Publisher, logger logging.Logger) *Session {
	return &Session{
		opener:     opener,
		rules:      rules,
		ingest:     ingest,
		popularity: ranker,
		tracker:    tracker,
		publisher:  publisher,
		logger:     logger,
		state:      StateIdle,
	}
}

// State returns the current lifecycle phase
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start moves an idle session to connecting and resyncs the filter
// rules. A failed resync degrades to the local rule state rather than
// aborting the start. Starting a non-idle session is rejected.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.publisher.Publish(events.Status("Stream already initiated"))
		return ErrAlreadyActive
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if _, err := s.rules.SyncFromRemote(ctx); err != nil {
		s.logger.WithError(err).Warn("Rule resync failed during stream start")
	}

	s.publisher.Publish(events.Status("Stream initiated"))
	return nil
}

// OpenFilter dials the filtered stream and launches the consume loop.
// Requires a prior Start; a failed dial leaves the session connecting
// so open can be retried.
func (s *Session) OpenFilter(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnecting:
	case StateStreaming:
		s.mu.Unlock()
		s.publisher.Publish(events.Status("Stream already initiated"))
		return ErrAlreadyActive
	default:
		s.mu.Unlock()
		s.publisher.Publish(events.Status("No active stream"))
		return ErrNoActiveStream
	}
	s.mu.Unlock()

	consumeCtx, cancel := context.WithCancel(ctx)
	stream, err := s.opener.OpenStream(consumeCtx, firehose.DefaultStreamParams())
	if err != nil {
		cancel()
		s.publishStreamError(err)
		return err
	}

	// The lock was released during the dial, so a concurrent open or
	// stop may have moved the session on. Only one connection may serve
	// a session; a late dial is closed instead of recorded.
	s.mu.Lock()
	if s.state != StateConnecting {
		lost := s.state
		s.mu.Unlock()
		cancel()
		_ = stream.Close()
		if lost == StateStreaming {
			s.publisher.Publish(events.Status("Stream already initiated"))
			return ErrAlreadyActive
		}
		s.publisher.Publish(events.Status("No active stream"))
		return ErrNoActiveStream
	}
	s.state = StateStreaming
	s.stream = stream
	s.cancel = cancel
	s.mu.Unlock()

	s.publisher.Publish(events.Status("Streaming"))
	s.logger.Info("Filtered stream connected")
	go s.consume(consumeCtx, stream)
	return nil
}

// Stop disconnects an active session. The connection is torn down
// without waiting for the provider and engagement tracking stops.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != StateStreaming && s.state != StateConnecting {
		s.mu.Unlock()
		s.publisher.Publish(events.Status("No active stream"))
		return ErrNoActiveStream
	}
	s.state = StateDisconnecting
	stream := s.stream
	cancel := s.cancel
	s.stream = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		// fire-and-forget
		_ = stream.Close()
	}
	s.tracker.Stop()

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	s.publisher.Publish(events.Status("Disconnect signal sent"))
	s.logger.Info("Stream disconnected by request")
	return nil
}

// consume reads events until the stream ends. Remote closes and errors
// move the session through errored back to idle; a local Stop exits
// silently because Stop already announced the disconnect.
func (s *Session) consume(ctx context.Context, stream EventStream) {
	for {
		event, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			if errors.Is(err, io.EOF) {
				s.publisher.Publish(events.Status("Stream connection closed by remote"))
			} else {
				s.publishStreamError(err)
			}
			s.finishErrored()
			return
		}

		if event.Data == nil {
			continue
		}
		s.onPost(ctx, event)
	}
}

// onPost dispatches one streamed post: announce it immediately, persist
// it and the included side-objects in the background, refresh the
// popularity lists once persisted, and start engagement tracking on the
// first post.
func (s *Session) onPost(ctx context.Context, event *firehose.PostEvent) {
	tags := make([]string, 0, len(event.MatchingRules))
	for _, rule := range event.MatchingRules {
		tags = append(tags, rule.Tag)
	}

	// Announce before persistence: consumers see arrival latency, not
	// storage latency.
	s.publisher.Publish(events.PostArrived(event.Data.ID, strings.Join(tags, ", ")))

	if event.Includes != nil {
		go s.ingest.SaveIncludes(ctx, event.Includes)
	}

	go func() {
		if err := s.ingest.Ingest(ctx, event.Data); err != nil {
			s.logger.WithError(err).WithField("post_id", event.Data.ID).Error("Failed to ingest post")
			return
		}
		lists, err := s.popularity.Top10(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to refresh popularity lists")
			return
		}
		s.publisher.Publish(events.Popularity(lists.Hashtags, lists.Mentions, lists.Topics))
	}()

	if !s.tracker.Tracking() {
		s.tracker.Start(ctx, event.Data.CreatedAt)
	}
}

// finishErrored records the failure and returns the session to idle so
// a new start can be attempted.
func (s *Session) finishErrored() {
	s.mu.Lock()
	s.state = StateErrored
	s.stream = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.tracker.Stop()
	s.publisher.Publish(events.Status("Stream disconnected"))

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
}

// publishStreamError maps a stream failure to its status broadcast
func (s *Session) publishStreamError(err error) {
	var providerErr *firehose.ProviderError
	if errors.As(err, &providerErr) {
		s.publisher.Publish(events.Status(fmt.Sprintf("Stream encountered HTTP Error: %d", providerErr.StatusCode)))
		s.logger.WithError(err).WithField("status_code", providerErr.StatusCode).Error("Stream rejected by provider")
		return
	}
	s.publisher.Publish(events.Status("Stream connection has errored or timed out"))
	s.logger.WithError(err).Error("Stream connection failed")
}
