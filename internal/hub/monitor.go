package hub

import (
	"Teamdesk/internal/model"
)

// MonitorService gathers hub statistics for the monitor route.
type MonitorService struct {
	hub *Hub
}

func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats returns a snapshot of connections and channel subscriptions.
func (ms *MonitorService) GetStats() model.MonitorResponse {
	connections := ms.getConnectionStats()
	rooms := ms.getRoomStats()

	status := "healthy"
	if connections.TotalConnected == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connections,
		Rooms:       rooms,
	}
}

func (ms *MonitorService) getConnectionStats() model.ConnectionStats {
	ms.hub.clientsMu.RLock()
	defer ms.hub.clientsMu.RUnlock()

	users := make(map[string]struct{}, len(ms.hub.clients))
	for _, c := range ms.hub.clients {
		users[c.userID] = struct{}{}
	}

	return model.ConnectionStats{
		TotalConnected: len(ms.hub.clients),
		UniqueUsers:    len(users),
	}
}

func (ms *MonitorService) getRoomStats() model.RoomStats {
	stats := model.RoomStats{}

	for _, shard := range ms.hub.shards {
		shard.RLock()
		stats.TotalRooms += len(shard.rooms)
		for _, room := range shard.rooms {
			stats.TotalSubscriptions += len(room)
		}
		shard.RUnlock()
	}

	return stats
}
