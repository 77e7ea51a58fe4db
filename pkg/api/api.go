package api

import (
	"TargetFetcher/internal/logging"
	"TargetFetcher/internal/models"
	"TargetFetcher/pkg/dispatch"
	"TargetFetcher/pkg/target"
	"TargetFetcher/pkg/worker"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const StatusRejected = "rejected"

type Server struct {
	Queue        *dispatch.Queue
	Pool         *worker.Pool
	ReplyTimeout time.Duration

	upgrader websocket.Upgrader
}

func NewServer(queue *dispatch.Queue, pool *worker.Pool, replyTimeout time.Duration) *Server {
	return &Server{
		Queue:        queue,
		Pool:         pool,
		ReplyTimeout: replyTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/targets", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)
	return r
}

func toTarget(req models.TargetRequest) (target.Target, error) {
	kind, err := target.ParseKind(req.Kind)
	if err != nil {
		return target.Target{}, err
	}
	return target.New(kind, req.Destination, req.Source), nil
}

// submit validates and enqueues one request. A non-nil error means the
// request never reached a worker.
func (s *Server) submit(req models.TargetRequest) (string, *dispatch.Reply, error) {
	taskID := uuid.NewString()
	t, err := toTarget(req)
	if err == nil {
		var reply *dispatch.Reply
		reply, err = dispatch.Submit(s.Queue, t)
		if err == nil {
			logging.GlobalLogger.Debug(fmt.Sprintf("Task %s queued: %s", taskID, t))
			return taskID, reply, nil
		}
	}
	logging.GlobalLogger.Warn(fmt.Sprintf("Task %s rejected: %v", taskID, err))
	return taskID, nil, err
}

func rejection(taskID string, req models.TargetRequest, err error) models.TaskResponse {
	return models.TaskResponse{
		TaskID:      taskID,
		Destination: req.Destination,
		Status:      StatusRejected,
		Message:     err.Error(),
	}
}

func (s *Server) waitContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.ReplyTimeout > 0 {
		return context.WithTimeout(parent, s.ReplyTimeout)
	}
	return context.WithCancel(parent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.GlobalLogger.Warn("Failed to write response: " + err.Error())
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req models.TargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.TaskResponse{Status: StatusRejected, Message: "invalid JSON: " + err.Error()})
		return
	}

	taskID, reply, err := s.submit(req)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, dispatch.ErrQueueClosed) {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, rejection(taskID, req, err))
		return
	}

	ctx, cancel := s.waitContext(r.Context())
	defer cancel()

	resp := models.TaskResponse{TaskID: taskID, Destination: req.Destination}
	status, err := reply.Await(ctx)
	if err != nil {
		resp.Status = dispatch.Failed.String()
		resp.Message = "no reply: " + err.Error()
		writeJSON(w, http.StatusGatewayTimeout, resp)
		return
	}

	resp.Status = status.String()
	if status == dispatch.Success {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Message = "materialization failed, see server logs"
	writeJSON(w, http.StatusInternalServerError, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.PoolStatus{
		Workers: s.Pool.ThreadCount,
		Live:    s.Pool.Live(),
		Pending: s.Queue.Len(),
	})
}

// handleWS accepts one target request per text message and answers each
// with a TaskResponse as soon as its reply arrives, in completion order.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.GlobalLogger.Warn("WebSocket upgrade failed: " + err.Error())
		return
	}
	defer conn.Close()

	// Pending waits stop once the client goes away. Replies are awaited, not
	// abandoned, so the answering worker keeps running.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	send := func(resp models.TaskResponse) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(resp); err != nil {
			logging.GlobalLogger.Debug("WebSocket write failed: " + err.Error())
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.GlobalLogger.Debug("WebSocket read ended: " + err.Error())
			}
			cancel()
			return
		}

		var req models.TargetRequest
		if err := json.Unmarshal(data, &req); err != nil {
			send(models.TaskResponse{Status: StatusRejected, Message: "invalid JSON: " + err.Error()})
			continue
		}

		taskID, reply, err := s.submit(req)
		if err != nil {
			send(rejection(taskID, req, err))
			continue
		}

		wg.Add(1)
		go func(req models.TargetRequest) {
			defer wg.Done()
			waitCtx, waitCancel := s.waitContext(ctx)
			defer waitCancel()

			resp := models.TaskResponse{TaskID: taskID, Destination: req.Destination}
			status, err := reply.Await(waitCtx)
			if err != nil {
				resp.Status = dispatch.Failed.String()
				resp.Message = "no reply: " + err.Error()
			} else {
				resp.Status = status.String()
			}
			send(resp)
		}(req)
	}
}
