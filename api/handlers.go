package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/adamwitko/retro/domain"
	"github.com/adamwitko/retro/hub"
	"github.com/adamwitko/retro/protocol"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, rooms *Rooms, store Storage, auth Authenticator, broker Broker, sessions SessionRevoker, logger *log.Logger) {
	e.POST("/api/frames", postFrames(rooms, store, auth, broker, logger))
	e.GET("/api/retros/:id/stream", streamRetro(rooms, auth, broker))
	e.POST("/api/logout", logout(sessions))
	e.GET("/healthz", healthz())

	initArchiver(store, logger)
}

// postFrameResponse carries the frames a request produces for the sender
// alone. Frames addressed to the whole retro travel over the stream.
type postFrameResponse struct {
	Frames []json.RawMessage `json:"frames,omitempty"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func logout(sessions SessionRevoker) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := sessions.RevokeAuthHeader(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postFrames(rooms *Rooms, store Storage, auth Authenticator, broker Broker, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newFrameRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		user, authErr := auth.UserFromAuthHeader(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		raw, readErr := io.ReadAll(io.LimitReader(c.Request().Body, postFrameMaxSize))
		if readErr != nil {
			metrics.SetErrorStage("read_body")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}

		env, decErr := protocol.DecodeEnvelope(raw)
		if decErr != nil {
			metrics.SetErrorStage("decode_envelope")
			err = c.String(http.StatusBadRequest, "invalid frame")
			return err
		}
		metrics.SetOp(string(env.Op))

		req, reqErr := protocol.DecodeRequest(env)
		if reqErr != nil {
			if errors.Is(reqErr, protocol.ErrUnknownRequest) {
				// Unknown ops are dropped without ceremony so old clients
				// keep working against newer servers.
				err = c.JSON(http.StatusAccepted, postFrameResponse{})
				return err
			}
			metrics.SetErrorStage("decode_payload")
			return respondFrames(c, metrics, errorFrame(reqErr.Error()))
		}

		dispatchStart := time.Now()
		switch q := req.(type) {
		case protocol.MenuRequest:
			frames, menuErr := menuFrames(ctx, rooms, store)
			metrics.ObserveDispatch(time.Since(dispatchStart))
			if menuErr != nil {
				metrics.SetErrorStage("storage")
				c.Logger().Error(menuErr)
				err = c.String(http.StatusInternalServerError, menuErr.Error())
				return err
			}
			return respondFrames(c, metrics, frames...)
		case protocol.CreateRetroRequest:
			room, frames, createErr := rooms.Create(q.Name, q.Users)
			if createErr != nil {
				metrics.SetErrorStage("create")
				err = c.String(http.StatusInternalServerError, createErr.Error())
				return err
			}
			if _, joinErr := rooms.Join(env.ID, room.ID); joinErr != nil {
				metrics.SetErrorStage("join")
				err = c.String(http.StatusInternalServerError, joinErr.Error())
				return err
			}
			metrics.ObserveDispatch(time.Since(dispatchStart))
			archiveFrames(store, room.ID, frames)
			return respondFrames(c, metrics, frames...)
		case protocol.JoinRetroRequest:
			room, joinErr := rooms.Join(env.ID, q.RetroID)
			if joinErr != nil {
				metrics.SetErrorStage("join")
				return respondFrames(c, metrics, errorFrame(joinErr.Error()))
			}
			outs, annErr := room.Announce(user)
			if annErr != nil {
				metrics.SetErrorStage("dispatch")
				err = c.String(http.StatusInternalServerError, annErr.Error())
				return err
			}
			snapshot, snapErr := room.Snapshot(user)
			metrics.ObserveDispatch(time.Since(dispatchStart))
			if snapErr != nil {
				metrics.SetErrorStage("dispatch")
				err = c.String(http.StatusInternalServerError, snapErr.Error())
				return err
			}
			if pubErr := publishOutbound(ctx, broker, metrics, room.ID, outs); pubErr != nil {
				metrics.SetErrorStage("publish")
				err = c.String(http.StatusInternalServerError, pubErr.Error())
				return err
			}
			archiveFrames(store, room.ID, broadcastFrames(outs))
			return respondFrames(c, metrics, snapshot...)
		default:
			room, roomErr := rooms.RoomFor(env.ID)
			if roomErr != nil {
				metrics.SetErrorStage("no_room")
				return respondFrames(c, metrics, errorFrame(roomErr.Error()))
			}
			outs, handleErr := room.Handle(user, req)
			metrics.ObserveDispatch(time.Since(dispatchStart))
			if handleErr != nil {
				metrics.SetErrorStage("dispatch")
				err = c.String(http.StatusInternalServerError, handleErr.Error())
				return err
			}
			if pubErr := publishOutbound(ctx, broker, metrics, room.ID, outs); pubErr != nil {
				metrics.SetErrorStage("publish")
				err = c.String(http.StatusInternalServerError, pubErr.Error())
				return err
			}
			archiveFrames(store, room.ID, broadcastFrames(outs))
			metrics.SetFramesOut(len(outs))
			err = c.JSON(http.StatusAccepted, postFrameResponse{})
			return err
		}
	}
}

func respondFrames(c echo.Context, metrics *frameRequestMetrics, frames ...[]byte) error {
	resp := postFrameResponse{Frames: make([]json.RawMessage, len(frames))}
	for i, f := range frames {
		resp.Frames[i] = json.RawMessage(f)
	}
	metrics.SetFramesOut(len(frames))
	return c.JSON(http.StatusOK, resp)
}

func errorFrame(msg string) []byte {
	frame, err := protocol.EncodeFrame(protocol.OpError, protocol.ErrorPayload{Error: msg})
	if err != nil {
		// ErrorPayload is a single string field; encoding it cannot fail.
		panic(err)
	}
	return frame
}

// menuFrames lists every known retro as a retro frame. Live rooms win over
// the archive when both know the same retro.
func menuFrames(ctx context.Context, rooms *Rooms, store Storage) ([][]byte, error) {
	live := rooms.List()
	seen := make(map[domain.RetroID]struct{}, len(live))
	all := make([]domain.Retro, 0, len(live))
	for _, r := range live {
		seen[r.ID] = struct{}{}
		all = append(all, r)
	}
	archived, err := store.FetchRetros(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range archived {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		all = append(all, r)
	}

	frames := make([][]byte, 0, len(all))
	for _, r := range all {
		frame, err := protocol.EncodeFrame(protocol.OpRetro, protocol.RetroPayload{
			ID:           r.ID,
			Name:         r.Name,
			CreatedAt:    r.CreatedAt,
			Participants: r.Participants,
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func publishOutbound(ctx context.Context, broker Broker, metrics *frameRequestMetrics, retroID domain.RetroID, outs []Outbound) error {
	publishStart := time.Now()
	defer func() {
		metrics.ObservePublish(time.Since(publishStart))
	}()
	for _, out := range outs {
		msg := hub.Message{RetroID: retroID, Target: out.Target, Frame: out.Frame}
		if err := broker.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func broadcastFrames(outs []Outbound) [][]byte {
	frames := make([][]byte, 0, len(outs))
	for _, out := range outs {
		if out.Target != "" {
			continue
		}
		frames = append(frames, out.Frame)
	}
	return frames
}

// archiveFrames hands broadcast frames to the archive workers, falling
// back to an inline enqueue when the buffer is saturated. Archive failures
// never fail the request.
func archiveFrames(store Storage, retroID domain.RetroID, frames [][]byte) {
	if len(frames) == 0 {
		return
	}

	if tryEnqueueJob(archiveJob{retroID: retroID, frames: frames}) {
		return
	}

	if globalLog != nil {
		globalLog.Warn("archive buffer saturated; enqueueing inline")
	}

	enqueueCtx, cancel := context.WithTimeout(bg, enqueueTimeout)
	defer cancel()
	if err := store.EnqueueFrames(enqueueCtx, retroID, frames); err != nil && globalLog != nil {
		globalLog.Errorf("inline archive enqueue failed: %v", err)
	}
}

func streamRetro(rooms *Rooms, auth Authenticator, broker Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			// EventSource cannot set headers; browsers pass the token in
			// the query string instead.
			authHeader = "Bearer " + token
		}
		user, err := auth.UserFromAuthHeader(ctx, authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		retroID := domain.RetroID(c.Param("id"))
		room, ok := rooms.Get(retroID)
		if !ok {
			return c.String(http.StatusNotFound, "unknown retro")
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		sub := broker.Subscribe(retroID, user)
		defer broker.Unsubscribe(sub)

		snapshot, err := room.Snapshot(user)
		if err != nil {
			c.Logger().Error(err)
			return err
		}
		for _, frame := range snapshot {
			if err := writeEvent(c.Response(), frame); err != nil {
				c.Logger().Error(err)
				return err
			}
		}
		flusher.Flush()

		for {
			select {
			case <-ctx.Done():
				return nil
			case frame := <-sub.C:
				if err := writeEvent(c.Response(), frame); err != nil {
					c.Logger().Error(err)
					return err
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w io.Writer, frame []byte) error {
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
