package report

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"

	"github.com/farmanp/windtunnel/pkg/logging"
)

// TailServer serves a read-only websocket endpoint that streams a run's
// steps.jsonl: the lines already written, then each line as it is
// appended. It does not
// expose control endpoints; starting/stopping a run stays a CLI concern.
type TailServer struct {
	runDir       string
	log          *logging.Logger
	upgrader     websocket.Upgrader
	pollInterval time.Duration
}

// NewTailServer constructs a TailServer over one run directory.
func NewTailServer(runDir string, log *logging.Logger) *TailServer {
	return &TailServer{
		runDir: runDir,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pollInterval: 250 * time.Millisecond,
	}
}

// Handler returns the http.Handler for the /ws tail endpoint.
func (s *TailServer) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

func (s *TailServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	path := filepath.Join(s.runDir, "steps.jsonl")
	f, err := os.Open(path)
	if err != nil {
		conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"error":"failed to open steps.jsonl: %s"}`, err.Error())))
		return
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			for {
				line, err := reader.ReadBytes('\n')
				if len(line) > 0 {
					if writeErr := conn.WriteMessage(websocket.TextMessage, line); writeErr != nil {
						return
					}
				}
				if err != nil {
					break
				}
			}
		}
	}
}

func (s *TailServer) logf(msg string, kv ...any) {
	if s.log == nil {
		return
	}
	s.log.Warn(msg, kv...)
}
