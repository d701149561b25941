package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/callwarden/callwarden/internal/observe"
	"github.com/callwarden/callwarden/internal/pipeline"
)

// streamFrame is one websocket message in either direction. The client sends
// frames with Audio set; the server answers with Result or Error set.
type streamFrame struct {
	ChunkID uint64 `json:"chunk_id"`

	// Audio is the base64 payload. Client to server only.
	Audio string `json:"audio,omitempty"`

	// Result carries the pipeline outcome for the chunk. Server to client.
	Result *pipeline.Result `json:"result,omitempty"`

	// Error carries the failure for the chunk. Server to client. A chunk
	// error does not close the stream; the session and its window survive.
	Error *errorDetail `json:"error,omitempty"`
}

// handleStream upgrades to a websocket and processes one chunk frame at a
// time. Frames are handled sequentially in arrival order, which preserves the
// append-before-next-analyze ordering for the session without extra locking
// here.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	log := observe.Logger(r.Context()).With("session_id", sessionID)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := r.Context()
	log.Info("chunk stream opened")

	for {
		var req ChunkRequest
		if err := readFrame(ctx, conn, &req); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				log.Info("chunk stream closed by client")
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if ctx.Err() != nil {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			log.Warn("chunk stream read failed", "error", err)
			conn.Close(websocket.StatusInvalidFramePayloadData, "malformed chunk frame")
			return
		}

		frame := streamFrame{ChunkID: req.ChunkID}
		res, err := s.pipeline.Process(ctx, sessionID, req.ChunkID, req.Audio)
		if err != nil {
			frame.Error = stageErrorDetail(err)
		} else {
			frame.Result = res
		}

		if err := writeFrame(ctx, conn, frame); err != nil {
			log.Warn("chunk stream write failed", "error", err)
			return
		}
	}
}

func readFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	if typ != websocket.MessageText {
		return errors.New("expected text frame")
	}
	return json.Unmarshal(data, v)
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func stageErrorDetail(err error) *errorDetail {
	var se *pipeline.StageError
	if errors.As(err, &se) {
		return &errorDetail{Stage: string(se.Stage), Message: se.Err.Error()}
	}
	return &errorDetail{Message: err.Error()}
}
