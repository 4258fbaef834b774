package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ammcon/broker"
	"ammcon/commands"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN only
	},
}

const wsReadLimit = 512

// HTTP serves the command API:
//
//	GET /command?command=<name>[&id=<id>]  one Reply
//	GET /commands                          vocabulary names
//	GET /ws                                Request/Reply messages over a websocket
type HTTP struct {
	sub     Submitter
	table   *commands.Table
	timeout time.Duration
	srv     *http.Server
}

func NewHTTP(sub Submitter, table *commands.Table, timeout time.Duration) *HTTP {
	h := &HTTP{sub: sub, table: table, timeout: timeout}
	h.srv = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return h
}

func (h *HTTP) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", h.handleCommand)
	mux.HandleFunc("/commands", h.handleCommands)
	mux.HandleFunc("/ws", h.serveWS)
	return mux
}

// ListenAndServe blocks until Shutdown is called or the listener fails.
// It returns nil at once if Shutdown has already been called.
func (h *HTTP) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("http: listening on %s", ln.Addr())
	if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown may be called before, during or after ListenAndServe.
func (h *HTTP) Shutdown(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}

func (h *HTTP) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req := Request{
		ID:      r.FormValue("id"),
		Command: r.FormValue("command"),
	}
	reply, err := execute(r.Context(), h.sub, h.timeout, req)
	writeJSON(w, statusFor(err), reply)
}

func (h *HTTP) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	names := []string{}
	if h.table != nil {
		names = h.table.Names()
	}
	writeJSON(w, http.StatusOK, names)
}

// serveWS answers each Request message with a Reply message, one at a
// time per connection.
func (h *HTTP) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket: upgrade error: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket: read error: %v", err)
			}
			return
		}

		reply, _ := execute(r.Context(), h.sub, h.timeout, req)
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(reply); err != nil {
			log.Printf("websocket: write error: %v", err)
			return
		}
	}
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case isClientError(err):
		if errors.Is(err, broker.ErrUnknownCommand) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case errors.Is(err, broker.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}
