package bridge

import (
	"context"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

const sessionHeader = "mcp-session-id"

// handlePost implements POST /mcp: the JSON-RPC request channel. A request
// with no session header must be an `initialize`; every other request
// requires a known, live session.
func (b *Bridge) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		b.handleInitializeRequest(w, r.Context(), body)
		return
	}

	session, ok := b.manager.Get(sessionID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	session.touch()

	if !gjson.GetBytes(body, "method").Exists() {
		b.handleClientResponse(w, r.Context(), session, body)
		return
	}

	b.handleForwardedRequest(w, r.Context(), session, body)
}

func (b *Bridge) handleInitializeRequest(w http.ResponseWriter, ctx context.Context, body []byte) {
	sessionID, response, err := b.manager.HandleInitialize(ctx, body)
	if err != nil {
		if be, ok := err.(*Error); ok && be.Kind == MissingProtocolVersion {
			writeJSON(w, http.StatusOK, response)
			return
		}
		http.Error(w, "failed to start server subprocess", http.StatusInternalServerError)
		return
	}

	w.Header().Set(sessionHeader, sessionID)
	writeJSON(w, http.StatusOK, response)
}

// handleClientResponse handles a POST body that carries no "method" — a
// JSON-RPC response the client is sending back to a bridge-initiated
// request, namely the roots/list round trip.
func (b *Bridge) handleClientResponse(w http.ResponseWriter, ctx context.Context, session *Session, body []byte) {
	id := gjson.GetBytes(body, "id").String()
	session.mu.Lock()
	isRootsReply := id != "" && id == session.rootsRequestID
	session.mu.Unlock()

	if !isRootsReply {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := b.manager.HandleRootsListResult(ctx, session, body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleForwardedRequest handles a client-initiated JSON-RPC request
// (tools/list, tools/call, ...). Requests arriving before the session's
// sandbox scope is locked are queued and block until replay or timeout.
func (b *Bridge) handleForwardedRequest(w http.ResponseWriter, ctx context.Context, session *Session, body []byte) {
	if session.State() == AwaitingRoots {
		reply := make(chan []byte, 1)
		session.enqueue(body, reply)
		select {
		case resp := <-reply:
			writeJSON(w, http.StatusOK, resp)
		case <-session.Done():
			http.Error(w, "session terminated while awaiting handshake", http.StatusGatewayTimeout)
		case <-ctx.Done():
			http.Error(w, "request cancelled while awaiting handshake", http.StatusGatewayTimeout)
		}
		return
	}

	if session.State() == Terminated {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	resp, err := b.manager.Forward(ctx, session, body)
	if err != nil {
		http.Error(w, "subprocess communication failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSSE implements GET /mcp: the server-initiated notification
// channel. A missing or unknown session id is a 404.
func (b *Bridge) handleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session_id")
	}
	if sessionID == "" {
		http.NotFound(w, r)
		return
	}

	session, ok := b.manager.Get(sessionID)
	if !ok {
		http.NotFound(w, r)
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if canFlush {
		flusher.Flush()
	}

	defer func() {
		if session.State() != Terminated {
			b.manager.Remove(session.ID, ClientDisconnect)
		}
	}()

	for {
		select {
		case line := <-session.outbound:
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(line); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-session.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
