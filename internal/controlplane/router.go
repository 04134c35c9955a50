// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Donghh0221/afk/internal/afkerr"
	"github.com/Donghh0221/afk/internal/events"
	"github.com/Donghh0221/afk/internal/facade"
)

// Dependencies holds everything the HTTP router needs. Grounded on
// internal/api/router.go's Dependencies struct, cut down to the one
// facade every handler calls through.
type Dependencies struct {
	Facade   *facade.Facade
	Bus      *events.Bus
	LogLines func(n int) []string // tails the supervisor's own process log
}

// allEventTypes is subscribed to in full for the SSE stream since
// events.Bus dispatches per exact type rather than by wildcard pattern.
var allEventTypes = []events.Type{
	events.TypeAgentSystem,
	events.TypeAgentAssistant,
	events.TypeAgentPermissionRequest,
	events.TypeAgentResult,
	events.TypeAgentInputRequest,
	events.TypeAgentStopped,
	events.TypeFileReady,
	events.TypeSessionCreated,
}

// NewRouter builds the HTTP/SSE API surface SPEC_FULL.md §6 names.
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(recoveryMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/sessions", sessionsList(deps)).Methods(http.MethodGet)
	api.HandleFunc("/sessions", sessionsCreate(deps)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{cid}/status", sessionStatus(deps)).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{cid}/messages", sessionMessages(deps)).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{cid}/message", sessionMessage(deps)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{cid}/stop", sessionStop(deps)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{cid}/complete", sessionComplete(deps)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{cid}/permission", sessionPermission(deps)).Methods(http.MethodPost)

	api.HandleFunc("/projects", projectsList(deps)).Methods(http.MethodGet)
	api.HandleFunc("/projects", projectsCreate(deps)).Methods(http.MethodPost)
	api.HandleFunc("/projects/{name}", projectsDelete(deps)).Methods(http.MethodDelete)

	api.HandleFunc("/events", eventsStream(deps)).Methods(http.MethodGet)
	api.HandleFunc("/logs", logsTail(deps)).Methods(http.MethodGet)
	api.HandleFunc("/logs/stream", logsStreamWebsocket(deps)).Methods(http.MethodGet)

	r.HandleFunc("/dashboard", dashboard(deps)).Methods(http.MethodGet)

	return r
}

func sessionsList(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Facade.ListSessions())
	}
}

func sessionsCreate(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Project  string `json:"project"`
			Verbose  bool   `json:"verbose"`
			Agent    string `json:"agent"`
			Template string `json:"template"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, errBadRequest, "invalid request body")
			return
		}

		sess, err := deps.Facade.NewSession(r.Context(), body.Project, body.Verbose, "", body.Agent, body.Template)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess.Record())
	}
}

func sessionStatus(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cid := mux.Vars(r)["cid"]
		status, ok := deps.Facade.GetStatus(cid)
		if !ok {
			writeError(w, http.StatusNotFound, errNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func sessionMessages(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cid := mux.Vars(r)["cid"]
		messages, err := deps.Facade.Messages(cid)
		if err != nil {
			writeError(w, http.StatusInternalServerError, errInternalError, err.Error())
			return
		}

		after := r.URL.Query().Get("after")
		if after != "" {
			if t, err := time.Parse(time.RFC3339, after); err == nil {
				filtered := messages[:0]
				for _, m := range messages {
					if m.Timestamp.After(t) {
						filtered = append(filtered, m)
					}
				}
				messages = filtered
			}
		}
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n < len(messages) {
				messages = messages[len(messages)-n:]
			}
		}

		writeJSON(w, http.StatusOK, messages)
	}
}

func sessionMessage(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cid := mux.Vars(r)["cid"]
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, errBadRequest, "invalid request body")
			return
		}
		ok := deps.Facade.SendMessage(r.Context(), cid, body.Text)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
	}
}

func sessionStop(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cid := mux.Vars(r)["cid"]
		ok := deps.Facade.StopSession(r.Context(), cid)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
	}
}

func sessionComplete(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cid := mux.Vars(r)["cid"]
		ok, detail := deps.Facade.CompleteSession(r.Context(), cid)
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": ok, "detail": detail})
	}
}

func sessionPermission(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cid := mux.Vars(r)["cid"]
		var body struct {
			RequestID string `json:"request_id"`
			Allowed   bool   `json:"allowed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, errBadRequest, "invalid request body")
			return
		}
		ok := deps.Facade.PermissionResponse(r.Context(), cid, body.RequestID, body.Allowed)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
	}
}

func projectsList(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Facade.ListProjects())
	}
}

func projectsCreate(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, errBadRequest, "invalid request body")
			return
		}
		ok, msg := deps.Facade.AddProject(body.Name, body.Path)
		if !ok {
			writeError(w, http.StatusBadRequest, errBadRequest, msg)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"message": msg})
	}
}

func projectsDelete(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		ok, msg := deps.Facade.RemoveProject(name)
		if !ok {
			writeError(w, http.StatusNotFound, errNotFound, msg)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": msg})
	}
}

// eventsStream implements GET /api/events as a Server-Sent Events
// stream: one subscription per known event type, fanned into a single
// response body, grounded on internal/api/handlers/events.go's
// WebSocket handler's subscribe/forward/ping loop but over SSE instead
// of a websocket upgrade, matching SPEC_FULL.md §6's literal
// `data: <json>\n\n` framing and `X-Accel-Buffering: no` header.
func eventsStream(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, errInternalError, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		merged := make(chan events.Event, 256)
		var subIDs []events.SubscriptionID
		for _, typ := range allEventTypes {
			id, ch, err := deps.Bus.Subscribe(typ, 64)
			if err != nil {
				continue
			}
			subIDs = append(subIDs, id)
			go forward(r.Context(), ch, merged)
		}
		defer func() {
			for _, id := range subIDs {
				deps.Bus.Unsubscribe(id)
			}
		}()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev := <-merged:
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				w.Write([]byte("data: "))
				w.Write(data)
				w.Write([]byte("\n\n"))
				flusher.Flush()
			}
		}
	}
}

func forward(ctx context.Context, in <-chan events.Event, out chan<- events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func logsTail(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := 200
		if v := r.URL.Query().Get("lines"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				n = parsed
			}
		}
		var lines []string
		if deps.LogLines != nil {
			lines = deps.LogLines(n)
		}
		writeJSON(w, http.StatusOK, map[string][]string{"lines": lines})
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case err == afkerr.ErrUnregisteredProject:
		writeError(w, http.StatusNotFound, errNotFound, err.Error())
	case err == afkerr.ErrNotAVCSRepo:
		writeError(w, http.StatusConflict, errConflict, err.Error())
	case err == afkerr.ErrTemplateUnknown:
		writeError(w, http.StatusBadRequest, errBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, errInternalError, err.Error())
	}
}
