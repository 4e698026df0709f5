package socket

// Broadcaster provides high-level methods for broadcasting queue events
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// BroadcastPositionEnrolled announces a new position to the queue room.
func (b *Broadcaster) BroadcastPositionEnrolled(position map[string]interface{}) {
	b.hub.SendToRoom(RoomPowerLine, MessagePositionEnrolled, position, "")
}

func (b *Broadcaster) BroadcastPositionStatusChanged(position map[string]interface{}, oldStatus, newStatus string) {
	payload := map[string]interface{}{
		"position":  position,
		"oldStatus": oldStatus,
		"newStatus": newStatus,
	}
	b.hub.SendToRoom(RoomPowerLine, MessagePositionStatusChanged, payload, "")

	if userID, ok := position["userId"].(string); ok && userID != "" {
		b.hub.SendToUser(userID, MessagePositionStatusChanged, payload)
	}
}

func (b *Broadcaster) BroadcastQueueStats(stats map[string]interface{}) {
	b.hub.SendToRoom(RoomPowerLine, MessageQueueStats, stats, "")
}

// NotifySponsorRecruit tells a sponsor that someone they referred took a position.
func (b *Broadcaster) NotifySponsorRecruit(sponsorID string, recruit map[string]interface{}) {
	b.hub.SendToUser(sponsorID, MessageSponsorRecruit, recruit)
}
