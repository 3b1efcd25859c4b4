package server

import (
	"net/http"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/server/internal/conn"
	"github.com/gaspardpetit/libsync/server/internal/library"
	"github.com/gaspardpetit/libsync/server/internal/plugin"
	"github.com/gaspardpetit/libsync/server/internal/serverstate"
)

// State is the body of GET /api/state.
type State struct {
	Server      serverstate.State      `json:"server"`
	Inflight    int64                  `json:"inflight"`
	Libraries   []library.Info         `json:"libraries"`
	Connections []conn.Info            `json:"connections"`
	Fields      []spi.FieldRequirement `json:"fields"`
	Actions     []string               `json:"actions"`
	Plugins     []string               `json:"plugins"`
}

func (s *Server) snapshot() State {
	return State{
		Server:      serverstate.Snapshot(),
		Inflight:    s.Inflight.Load(),
		Libraries:   s.libraries.Snapshot(),
		Connections: s.conns.Snapshot(),
		Fields:      s.fields.Snapshot(),
		Actions:     s.routes.Actions(),
		Plugins:     s.plugins.IDs(),
	}
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func stateDescriptors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, plugin.Descriptors())
}

func healthz(w http.ResponseWriter, r *http.Request) {
	st := serverstate.Snapshot()
	code := http.StatusOK
	if st.Draining {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": st.Status})
}
