package presence

import (
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/datingchat-server/internal/observability"
)

// Service tracks who is online on top of a Registry. Broadcasting presence
// changes is left to the caller; the returned flags say when one is due.
type Service struct {
	registry *Registry
	log      *zerolog.Logger
}

// NewService wraps registry. A nil registry gets a fresh one.
func NewService(registry *Registry, logger *zerolog.Logger) *Service {
	if registry == nil {
		registry = NewRegistry()
	}
	l := logger.With().Str("component", "presence").Logger()
	return &Service{registry: registry, log: &l}
}

// UserConnected records a connection and reports whether it was the user's first.
func (s *Service) UserConnected(username, connectionID string) bool {
	first := s.registry.Add(username, connectionID)
	s.publishCount()
	if first {
		s.log.Debug().Str("user", username).Str("conn_id", connectionID).Msg("user online")
	}
	return first
}

// UserDisconnected removes a connection and reports whether the user went offline.
func (s *Service) UserDisconnected(username, connectionID string) bool {
	offline := s.registry.Remove(username, connectionID)
	s.publishCount()
	if offline {
		s.log.Debug().Str("user", username).Str("conn_id", connectionID).Msg("user offline")
	}
	return offline
}

// ConnectionClosed removes a connection by id alone, for close paths that
// only know the transport connection.
func (s *Service) ConnectionClosed(connectionID string) (username string, isNowOffline, ok bool) {
	username, isNowOffline, ok = s.registry.RemoveConnection(connectionID)
	if !ok {
		return "", false, false
	}
	s.publishCount()
	if isNowOffline {
		s.log.Debug().Str("user", username).Str("conn_id", connectionID).Msg("user offline")
	}
	return username, isNowOffline, true
}

// GetOnlineUsers returns online usernames sorted for stable rendering.
func (s *Service) GetOnlineUsers() []string {
	return s.registry.OnlineUsers()
}

// GetConnectionsForUser returns every live connection of username.
func (s *Service) GetConnectionsForUser(username string) []string {
	return s.registry.ConnectionsFor(username)
}

// IsOnline reports whether username has a live connection.
func (s *Service) IsOnline(username string) bool {
	return s.registry.IsOnline(username)
}

// Connections returns every live connection id.
func (s *Service) Connections() []string {
	return s.registry.Connections()
}

// ConnectionsExcept returns every live connection not owned by username.
func (s *Service) ConnectionsExcept(username string) []string {
	own := s.registry.ConnectionsFor(username)
	return lo.Without(s.registry.Connections(), own...)
}

func (s *Service) publishCount() {
	observability.SetOnlineUsers(s.registry.Count())
}
