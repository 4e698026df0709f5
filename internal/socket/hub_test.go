package socket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func connect(t *testing.T, h *Hub, userID string) *Client {
	t.Helper()
	c := NewClient(h, userID, nil)
	require.True(t, h.add(c))
	h.JoinRoom(c, UserRoom(userID))
	h.JoinRoom(c, RoomPowerLine)
	return c
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("no message for %s", c.UserID)
		return Message{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message for %s: %s", c.UserID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcasterPositionEnrolledReachesQueueRoom(t *testing.T) {
	h := startHub(t)
	alice := connect(t, h, "alice")
	bob := connect(t, h, "bob")

	NewBroadcaster(h).BroadcastPositionEnrolled(map[string]interface{}{"position": 7})

	for _, c := range []*Client{alice, bob} {
		msg := receive(t, c)
		assert.Equal(t, MessagePositionEnrolled, msg.Type)
		assert.Equal(t, float64(7), msg.Payload["position"])
	}
}

func TestBroadcasterSponsorRecruitIsDirect(t *testing.T) {
	h := startHub(t)
	sponsor := connect(t, h, "sponsor")
	other := connect(t, h, "other")

	NewBroadcaster(h).NotifySponsorRecruit("sponsor", map[string]interface{}{"position": 12})

	msg := receive(t, sponsor)
	assert.Equal(t, MessageSponsorRecruit, msg.Type)
	assertSilent(t, other)
}

func TestSendToRoomExcludesUser(t *testing.T) {
	h := startHub(t)
	alice := connect(t, h, "alice")
	bob := connect(t, h, "bob")

	h.SendToRoom(RoomPowerLine, MessageQueueStats, map[string]interface{}{"totalPositions": 3}, "alice")

	assert.Equal(t, MessageQueueStats, receive(t, bob).Type)
	assertSilent(t, alice)
}

func TestClientJoinRules(t *testing.T) {
	h := NewHub()
	c := NewClient(h, "alice", nil)

	assert.True(t, c.canJoin(RoomPowerLine))
	assert.True(t, c.canJoin("user:alice"))
	assert.False(t, c.canJoin("user:bob"))
	assert.False(t, c.canJoin(""))
}

func TestHubStopClosesClients(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := connect(t, h, "alice")
	assert.Equal(t, 1, h.GetRoomClients(RoomPowerLine))

	cancel()
	<-stopped

	_, open := <-c.Send
	assert.False(t, open)
	assert.False(t, h.add(NewClient(h, "late", nil)))
	assert.Equal(t, 0, h.GetConnectedClientsCount())
}

func TestJoinAfterDisconnectIsIgnored(t *testing.T) {
	h := startHub(t)
	c := connect(t, h, "alice")

	h.remove(c)
	require.Eventually(t, func() bool { return h.GetConnectedClientsCount() == 0 }, time.Second, 5*time.Millisecond)

	h.JoinRoom(c, RoomPowerLine)
	assert.Equal(t, 0, h.GetRoomClients(RoomPowerLine))

	// must not panic on the closed send channel
	h.SendToRoom(RoomPowerLine, MessageQueueStats, nil, "")
	c.reply(MessagePong, nil)
}

func TestClientHandleJoinAndPing(t *testing.T) {
	h := startHub(t)
	c := NewClient(h, "alice", nil)
	require.True(t, h.add(c))

	c.handle(ClientMessage{Action: ActionJoin, Room: "user:bob"})
	assert.Equal(t, 0, h.GetRoomClients("user:bob"))

	c.handle(ClientMessage{Action: ActionJoin, Room: RoomPowerLine})
	assert.Equal(t, 1, h.GetRoomClients(RoomPowerLine))
	ack := receive(t, c)
	assert.Equal(t, MessageAck, ack.Type)
	assert.Equal(t, "joined", ack.Payload["action"])

	c.handle(ClientMessage{Action: ActionPing})
	assert.Equal(t, MessagePong, receive(t, c).Type)

	c.handle(ClientMessage{Action: ActionLeave, Room: RoomPowerLine})
	assert.Equal(t, 0, h.GetRoomClients(RoomPowerLine))
}
