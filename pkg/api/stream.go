package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/contract-jobs/pkg/app/http"
	"github.com/chainsafe/contract-jobs/pkg/dispatcher"
	"github.com/chainsafe/contract-jobs/pkg/entity"
)

const (
	payloadWait = 30 * time.Second
	writeWait   = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// callers are API clients, not browsers sharing cookies
	CheckOrigin: func(*http.Request) bool { return true },
}

// Frame is one message written to a job stream
type Frame struct {
	JobID string          `json:"job_id,omitempty"`
	State entity.JobState `json:"state"`
	Data  any             `json:"data,omitempty"`
}

// FrameError is the data of a failed frame
type FrameError struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

// stream upgrades to a websocket, reads the job payload from the first
// message and relays the job's events until it finishes
func (h *HTTP) stream(w http.ResponseWriter, r *http.Request) {
	kind, kindErr := parseKind(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if kindErr != nil {
		h.writeFailure(conn, "", kindErr)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(payloadWait))
	_, body, err := conn.ReadMessage()
	if err != nil {
		h.logger.Debug("No job payload received", zap.Error(err))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	payload, err := withTeam(r.Context(), body)
	if err != nil {
		h.writeFailure(conn, "", err)
		return
	}
	sub, err := h.jobs.Enqueue(context.WithoutCancel(r.Context()), kind, payload)
	if err != nil {
		h.writeFailure(conn, "", err)
		return
	}
	defer sub.Close()

	h.logger.Debug("Streaming job", zap.String("job_id", sub.JobID), zap.String("kind", string(kind)))
	if err := h.writeFrame(conn, Frame{JobID: sub.JobID, State: entity.JobWaiting}); err != nil {
		return
	}

	// the client only speaks once; a read error means it went away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			h.logger.Debug("Stream client disconnected", zap.String("job_id", sub.JobID))
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := h.writeFrame(conn, eventFrame(e)); err != nil {
				return
			}
			if e.Terminal() {
				h.closeNormally(conn)
				return
			}
		}
	}
}

func eventFrame(e dispatcher.Event) Frame {
	f := Frame{JobID: e.JobID, State: e.State}
	switch e.State {
	case entity.JobActive:
		f.Data = e.Payload
	case entity.JobCompleted:
		f.Data = e.Result
	case entity.JobFailed:
		f.Data = FrameError{Error: e.Error, Category: e.Category}
	}
	return f
}

func (h *HTTP) writeFailure(conn *websocket.Conn, jobID string, err error) {
	resp := apphttp.NewErrorResponse(err)
	data := FrameError{Error: resp.Error, Category: resp.Category}
	if err := h.writeFrame(conn, Frame{JobID: jobID, State: entity.JobFailed, Data: data}); err == nil {
		h.closeNormally(conn)
	}
}

func (h *HTTP) writeFrame(conn *websocket.Conn, f Frame) error {
	msg, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		h.logger.Debug("Failed to write stream frame", zap.String("job_id", f.JobID), zap.Error(err))
		return err
	}
	return nil
}

func (h *HTTP) closeNormally(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
