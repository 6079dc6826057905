package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/mot-fusion/mot"
)

type gaugeRecorder struct {
	mu     sync.Mutex
	counts []int
}

func (g *gaugeRecorder) SetStreamClients(count int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts = append(g.counts, count)
}

func startHub(t *testing.T, opts ...HubOption) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(opts...)
	go hub.Run(ctx)
	server := httptest.NewServer(NewHandler(hub))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func snapshot(trackID string) mot.FusedOutput {
	return mot.FusedOutput{
		Timestamp:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Tracks:        []mot.FusedTrack{{TrackID: trackID, ClassName: "person"}},
		ThreatLevel:   mot.ThreatLow,
		ActiveSensors: []string{"cam1"},
	}
}

func trackIDOf(t *testing.T, msg Message) string {
	t.Helper()
	data, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var output mot.FusedOutput
	require.NoError(t, json.Unmarshal(data, &output))
	require.Len(t, output.Tracks, 1)
	return output.Tracks[0].TrackID
}

func TestHubBroadcast(t *testing.T) {
	gauge := &gaugeRecorder{}
	hub, url := startHub(t, WithClientGauge(gauge))
	conn := dial(t, url)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish(context.Background(), snapshot("T0001")))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageSnapshot, msg.Type)
	assert.Equal(t, "T0001", trackIDOf(t, msg))

	gauge.mu.Lock()
	assert.Contains(t, gauge.counts, 1)
	gauge.mu.Unlock()
}

func TestHubLatestSnapshotOnConnect(t *testing.T) {
	hub, url := startHub(t)
	require.NoError(t, hub.Publish(context.Background(), snapshot("T0007")))

	conn := dial(t, url)
	msg := readMessage(t, conn)
	assert.Equal(t, MessageSnapshot, msg.Type)
	assert.Equal(t, "T0007", trackIDOf(t, msg))
}

func TestHubPing(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","id":"42"}`)))
	msg := readMessage(t, conn)
	assert.Equal(t, MessagePong, msg.Type)
	assert.Equal(t, map[string]any{"id": "42"}, msg.Data)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Error, "subscribe")
}

func TestHubDisconnect(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubPublishWithoutClients(t *testing.T) {
	hub := NewHub()
	assert.Equal(t, "stream", hub.Name())
	// Nothing drains the buffer without Run
	for i := 0; i < cap(hub.broadcast); i++ {
		require.NoError(t, hub.Publish(context.Background(), snapshot("T0001")))
	}
	assert.ErrorIs(t, hub.Publish(context.Background(), snapshot("T0001")), ErrBroadcastFull)
}
