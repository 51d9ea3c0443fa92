package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBroker accepts MQTT connections and acknowledges CONNECT, QoS 1
// PUBLISH and PINGREQ packets.
type testBroker struct {
	ln net.Listener

	mu     sync.Mutex
	topics []string
}

func startTestBroker(t *testing.T, addr string) *testBroker {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	b := &testBroker{ln: ln}
	go b.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return b
}

func (b *testBroker) serve() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		go b.handle(conn)
	}
}

func (b *testBroker) handle(conn net.Conn) {
	defer conn.Close()
	for {
		cp, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}
		var reply packets.ControlPacket
		switch pkt := cp.(type) {
		case *packets.ConnectPacket:
			ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
			ack.ReturnCode = packets.Accepted
			reply = ack
		case *packets.PublishPacket:
			b.mu.Lock()
			b.topics = append(b.topics, pkt.TopicName)
			b.mu.Unlock()
			if pkt.Qos > 0 {
				ack := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
				ack.MessageID = pkt.MessageID
				reply = ack
			}
		case *packets.PingreqPacket:
			reply = packets.NewControlPacket(packets.Pingresp)
		case *packets.DisconnectPacket:
			return
		}
		if reply != nil {
			if err := reply.Write(conn); err != nil {
				return
			}
		}
	}
}

func (b *testBroker) received() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.topics...)
}

// unusedAddr returns a loopback address with nothing listening on it.
func unusedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestConnectRecoversWhenBrokerStartsLate(t *testing.T) {
	addr := unusedAddr(t)
	p, err := NewMQTTPublisher(MQTTConfig{
		Broker:               "tcp://" + addr,
		ConnectTimeout:       200 * time.Millisecond,
		ConnectRetryInterval: 50 * time.Millisecond,
		PublishTimeout:       2 * time.Second,
	})
	require.NoError(t, err)
	defer p.Close()

	const topic = "hugh-the-lightbulb/HUGHBULB"
	ctx := context.Background()

	err = p.Connect(ctx)
	require.ErrorIs(t, err, ErrTransportUnavailable)
	assert.False(t, p.Connected())
	assert.ErrorIs(t, p.Publish(ctx, topic, make([]byte, 39)), ErrTransportUnavailable)

	broker := startTestBroker(t, addr)

	require.Eventually(t, func() bool { return p.State() == StateConnected },
		5*time.Second, 20*time.Millisecond)
	require.NoError(t, p.Publish(ctx, topic, make([]byte, 39)))
	assert.Equal(t, []string{topic}, broker.received())
}
