// ABOUTME: TUI update helpers for the gateway
// ABOUTME: Builds status snapshots from client state and pushes them to the TUI
package server

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// maxActivity bounds the recent activity list shown in the TUI
const maxActivity = 6

// status snapshots the server for display
func (s *Server) status() ServerStatus {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	status := ServerStatus{
		Name:    s.config.Name,
		Port:    s.config.Port,
		Reply:   "tone",
		Clients: make([]ClientInfo, 0, len(s.clients)),
	}
	if s.config.ReplyFile != "" {
		status.Reply = filepath.Base(s.config.ReplyFile)
	}

	for _, client := range s.clients {
		client.mu.RLock()
		info := ClientInfo{
			Name:     client.Name,
			ID:       client.ID,
			Persona:  client.Persona.Label,
			Codec:    client.Output.Codec,
			State:    client.state,
			Turns:    client.turns,
			BargeIns: client.bargeIns,
		}
		client.mu.RUnlock()

		status.Turns += info.Turns
		status.BargeIns += info.BargeIns
		status.Clients = append(status.Clients, info)
	}

	s.activityMu.Lock()
	status.Activity = append([]string(nil), s.activity...)
	s.activityMu.Unlock()

	sort.Slice(status.Clients, func(i, j int) bool {
		return status.Clients[i].Name < status.Clients[j].Name
	})
	return status
}

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.status())
}

// note records a line of recent activity and refreshes the TUI
func (s *Server) note(format string, args ...interface{}) {
	line := time.Now().Format("15:04:05") + " " + fmt.Sprintf(format, args...)

	s.activityMu.Lock()
	s.activity = append(s.activity, line)
	if len(s.activity) > maxActivity {
		s.activity = s.activity[len(s.activity)-maxActivity:]
	}
	s.activityMu.Unlock()

	s.updateTUI()
}
