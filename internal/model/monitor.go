package model

// MonitorResponse is the hub stats payload served on the monitor route.
type MonitorResponse struct {
	Status      string          `json:"status"`
	Connections ConnectionStats `json:"connections"`
	Rooms       RoomStats       `json:"rooms"`
}

// ConnectionStats summarizes live websocket connections.
type ConnectionStats struct {
	TotalConnected int `json:"totalConnected"`
	UniqueUsers    int `json:"uniqueUsers"`
}

// RoomStats summarizes channel subscriptions across all shards.
type RoomStats struct {
	TotalRooms         int `json:"totalRooms"`
	TotalSubscriptions int `json:"totalSubscriptions"`
}
