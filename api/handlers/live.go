package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/linesmerrill/benefits-access-api/models"
	"github.com/linesmerrill/benefits-access-api/validation"
)

const (
	liveIdleTimeout  = 5 * time.Minute
	liveWriteTimeout = 5 * time.Second
	liveMaxFrame     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the endpoint is public and read-only
	CheckOrigin: func(r *http.Request) bool { return true },
}

type liveFrame struct {
	OK         bool                 `json:"ok,omitempty"`
	Validation *validation.Result   `json:"validation,omitempty"`
	Error      *models.OutcomeError `json:"error,omitempty"`
}

// LiveValidationHandler validates codes as they are typed. Every text frame is the whole
// current input; the server answers once the input settles, and only for the latest frame.
func (a AccessCode) LiveValidationHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Debugw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(liveMaxFrame)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	debouncer := validation.NewDebouncer(a.Coalescer)
	var (
		latest  atomic.Uint64
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	write := func(seq uint64, frame liveFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if seq != latest.Load() {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			zap.S().Debugw("live validation write failed", "error", err)
			cancel()
		}
	}

	for {
		conn.SetReadDeadline(time.Now().Add(liveIdleTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		seq := latest.Add(1)
		wg.Add(1)
		go func(input string) {
			defer wg.Done()
			result, err := debouncer.Validate(ctx, input)
			switch {
			case errors.Is(err, validation.ErrSuperseded), ctx.Err() != nil:
				return
			case err != nil:
				kind := models.KindOf(err)
				if kind == "" {
					kind = models.KindStoreUnavailable
				}
				write(seq, liveFrame{Error: &models.OutcomeError{Kind: kind, Message: "validation is unavailable right now"}})
			default:
				write(seq, liveFrame{OK: true, Validation: &result})
			}
		}(string(data))
	}

	cancel()
	wg.Wait()
}
