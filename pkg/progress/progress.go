// Package progress streams live judging progress for a single submission
// over the assignments WebSocket.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dsa-judge/dsactl/pkg/api"
	"github.com/dsa-judge/dsactl/pkg/logging"
	"github.com/dsa-judge/dsactl/pkg/models"
)

// DefaultHeartbeatTimeout is how long the stream waits for a heartbeat
// before declaring the connection dead
const DefaultHeartbeatTimeout = 20 * time.Second

const (
	msgTypeHeartbeat = "heartbeat"
	errorPercentage  = -1
)

// openMessage is sent once the connection is established
type openMessage struct {
	Filename string `json:"filename"`
	UniqueID string `json:"unique_id"`
}

// frame is any message the server sends: heartbeats carry a type,
// progress reports carry a status
type frame struct {
	Type               string             `json:"type,omitempty"`
	Status             string             `json:"status,omitempty"`
	Message            string             `json:"message"`
	ProgressPercentage float64            `json:"progress_percentage"`
	Result             *models.Submission `json:"result,omitempty"`
}

type options struct {
	heartbeatTimeout time.Duration
	dialer           *websocket.Dialer
	logger           *logging.Logger
	uniqueID         string
}

// Option configures Dial
type Option func(*options)

// WithHeartbeatTimeout overrides DefaultHeartbeatTimeout
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(o *options) { o.heartbeatTimeout = d }
}

// WithDialer sets the websocket dialer (TLS settings, proxies)
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithUniqueID fixes the upload identifier instead of generating one
func WithUniqueID(id string) Option {
	return func(o *options) { o.uniqueID = id }
}

// Stream is a lazy, non-restartable sequence of progress events. It ends
// after a done or error event, or when Close is called.
type Stream struct {
	conn     *websocket.Conn
	timeout  time.Duration
	logger   *logging.Logger
	uniqueID string

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
	events    chan models.ProgressEvent
	wg        sync.WaitGroup
}

// WSURL derives the websocket base URL from the REST base URL
func WSURL(apiURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid API URL %q: %w", apiURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid API URL %q: unsupported scheme %q", apiURL, u.Scheme)
	}
	return u.String(), nil
}

// Dial connects to the progress endpoint of one submission and announces
// the uploaded file. baseURL is the websocket base including the API prefix.
func Dial(ctx context.Context, baseURL string, lectureID, submissionID int, filename string, creds api.Credentials, opts ...Option) (*Stream, error) {
	o := options{
		heartbeatTimeout: DefaultHeartbeatTimeout,
		dialer:           websocket.DefaultDialer,
		logger:           logging.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.uniqueID == "" {
		o.uniqueID = uuid.NewString()
	}

	endpoint := fmt.Sprintf("%s/assignments/ws/%d/%d", strings.TrimRight(baseURL, "/"), lectureID, submissionID)

	header := http.Header{}
	if !creds.IsZero() {
		header.Set("Authorization", creds.Header())
	}

	conn, resp, err := o.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s (status %d): %w", endpoint, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	if err := conn.WriteJSON(openMessage{Filename: filename, UniqueID: o.uniqueID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send open message: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		conn:     conn,
		timeout:  o.heartbeatTimeout,
		logger:   o.logger.WithField("submission_id", submissionID),
		uniqueID: o.uniqueID,
		ctx:      streamCtx,
		cancel:   cancel,
		events:   make(chan models.ProgressEvent),
	}
	o.logger.Debug("progress stream connected", map[string]interface{}{
		"endpoint":  endpoint,
		"unique_id": o.uniqueID,
	})
	return s, nil
}

// UniqueID returns the identifier sent in the open message
func (s *Stream) UniqueID() string {
	return s.uniqueID
}

// Events starts reading on first use and returns the event channel. The
// channel is closed after the final event or on Close.
func (s *Stream) Events() <-chan models.ProgressEvent {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
	return s.events
}

// Close stops the stream and releases the connection
func (s *Stream) Close() error {
	s.shutdown()
	s.wg.Wait()
	return s.closeErr
}

func (s *Stream) shutdown() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.closeErr = s.conn.Close()
	})
}

type readResult struct {
	data []byte
	err  error
}

func (s *Stream) run() {
	defer s.wg.Done()
	defer close(s.events)
	defer s.shutdown()

	reads := make(chan readResult)
	s.wg.Add(1)
	go s.readLoop(reads)

	watchdog := time.NewTimer(s.timeout)
	defer watchdog.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-watchdog.C:
			s.logger.Warn("no heartbeat received, closing progress stream", map[string]interface{}{
				"timeout": s.timeout.String(),
			})
			s.emit(errorEvent("connection lost: no heartbeat for " + s.timeout.String()))
			return

		case r := <-reads:
			if r.err != nil {
				s.logger.Warn("progress stream closed", map[string]interface{}{"error": r.err.Error()})
				s.emit(errorEvent(describeReadError(r.err)))
				return
			}

			var f frame
			if err := json.Unmarshal(r.data, &f); err != nil {
				s.logger.Warn("failed to parse progress message", map[string]interface{}{"error": err.Error()})
				s.emit(errorEvent("failed to parse progress message: " + err.Error()))
				return
			}

			if f.Type == msgTypeHeartbeat {
				resetTimer(watchdog, s.timeout)
				continue
			}

			event := models.ProgressEvent{
				Status:             f.Status,
				Message:            f.Message,
				ProgressPercentage: f.ProgressPercentage,
				Result:             f.Result,
			}
			if !s.emit(event) || event.IsFinal() {
				return
			}
		}
	}
}

func (s *Stream) readLoop(out chan<- readResult) {
	defer s.wg.Done()
	for {
		_, data, err := s.conn.ReadMessage()
		select {
		case out <- readResult{data: data, err: err}:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// emit delivers an event unless the stream was closed
func (s *Stream) emit(event models.ProgressEvent) bool {
	select {
	case s.events <- event:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func errorEvent(message string) models.ProgressEvent {
	return models.ProgressEvent{
		Status:             models.ProgressStatusError,
		Message:            message,
		ProgressPercentage: errorPercentage,
	}
}

func describeReadError(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Text != "" {
			return fmt.Sprintf("connection closed by server (%d): %s", closeErr.Code, closeErr.Text)
		}
		return fmt.Sprintf("connection closed by server (%d)", closeErr.Code)
	}
	return "connection error: " + err.Error()
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
