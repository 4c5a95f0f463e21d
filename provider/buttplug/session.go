package buttplug

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/hapticlink/errors"
)

const (
	maxFrameSize = 1 << 20
	closeGrace   = 250 * time.Millisecond
)

// session is one open server socket and its reply waiters
type session struct {
	ws     *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint32]chan envelope
}

func newSession(ws *websocket.Conn) *session {
	ctx, cancel := context.WithCancel(context.Background())
	ws.SetReadLimit(maxFrameSize)
	return &session{
		ws:      ws,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[uint32]chan envelope),
	}
}

// write sends one message. Safe for concurrent use.
func (s *session) write(msgType string, body any, timeout time.Duration) error {
	data, err := encode(msgType, body)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ws.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConnectionLost, err)
	}
	if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConnectionLost, err)
	}
	return nil
}

// request sends a message and waits for the reply carrying the same Id.
// An Error reply is returned as ErrServerError.
func (s *session) request(ctx context.Context, id uint32, msgType string, body any, timeout time.Duration) (envelope, error) {
	ch := make(chan envelope, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.write(msgType, body, timeout); err != nil {
		return envelope{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return envelope{}, ctx.Err()
	case <-s.ctx.Done():
		return envelope{}, fmt.Errorf("%w: socket closed awaiting %s reply", errors.ErrConnectionLost, msgType)
	case <-timer.C:
		return envelope{}, fmt.Errorf("%w: no reply to %s within %v", errors.ErrConnectionTimeout, msgType, timeout)
	case env := <-ch:
		if env.Type == msgError {
			var e errorMessage
			_ = json.Unmarshal(env.Raw, &e)
			return env, fmt.Errorf("%w: %s (code %d)", errors.ErrServerError, e.ErrorMessage, e.ErrorCode)
		}
		return env, nil
	}
}

// deliver hands env to the waiter registered for its Id
func (s *session) deliver(env envelope) bool {
	s.mu.Lock()
	ch, ok := s.pending[env.ID]
	if ok {
		delete(s.pending, env.ID)
	}
	s.mu.Unlock()

	if ok {
		ch <- env
	}
	return ok
}

// close cancels waiters, closes the socket and waits for the session loops
func (s *session) close() {
	s.cancel()
	_ = s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeGrace))
	_ = s.ws.Close()
	s.loops.Wait()
}
