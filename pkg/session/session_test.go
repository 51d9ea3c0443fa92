package session_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/CHERIoT-Platform/hugh-go/pkg/command"
	"github.com/CHERIoT-Platform/hugh-go/pkg/credential"
	hlog "github.com/CHERIoT-Platform/hugh-go/pkg/log"
	"github.com/CHERIoT-Platform/hugh-go/pkg/pairing"
	"github.com/CHERIoT-Platform/hugh-go/pkg/secretbox"
	"github.com/CHERIoT-Platform/hugh-go/pkg/session"
	"github.com/CHERIoT-Platform/hugh-go/pkg/transport"
	"github.com/CHERIoT-Platform/hugh-go/pkg/transport/mocks"
)

const hughTopic = "hugh-the-lightbulb/HUGHBULB"

func hughPayload() []byte {
	return append([]byte("HUGHBULB"), make([]byte, 32)...)
}

// countingPrimitive wraps secretbox.Seal and counts calls.
type countingPrimitive struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPrimitive) seal(dst, plaintext []byte, msgID uint64, ctx, key []byte) ([]byte, error) {
	p.mu.Lock()
	p.calls++
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return secretbox.Seal(dst, plaintext, msgID, ctx, key)
}

func (p *countingPrimitive) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type captureLogger struct {
	mu     sync.Mutex
	events []hlog.Event
}

func (l *captureLogger) Log(e hlog.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

type fixture struct {
	sess *session.Session
	pub  *transport.RecordingPublisher
	prim *countingPrimitive
	plog *captureLogger

	mu     sync.Mutex
	events []session.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		pub:  &transport.RecordingPublisher{},
		prim: &countingPrimitive{},
		plog: &captureLogger{},
	}
	sess, err := session.New(session.Config{
		Publisher:      f.pub,
		Encoder:        command.NewEncoder(f.prim.seal),
		ProtocolLogger: f.plog,
		SessionID:      "test-session",
	})
	require.NoError(t, err)
	sess.OnEvent(func(e session.Event) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, e)
	})
	f.sess = sess
	return f
}

func (f *fixture) lastEvent(t *testing.T) session.Event {
	t.Helper()
	require.NotEmpty(t, f.events)
	return f.events[len(f.events)-1]
}

func TestNewRequiresPublisher(t *testing.T) {
	_, err := session.New(session.Config{})
	assert.ErrorIs(t, err, session.ErrInvalidConfig)
}

func TestNewDefaults(t *testing.T) {
	sess, err := session.New(session.Config{Publisher: &transport.RecordingPublisher{}})
	require.NoError(t, err)
	assert.Len(t, sess.ID(), 36)
	assert.Equal(t, session.StateUnpaired, sess.State())
}

func TestScanTooShortLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)

	for n := 0; n < pairing.PayloadLength; n++ {
		err := f.sess.HandleScan(make([]byte, n))
		require.ErrorIs(t, err, pairing.ErrTooShort)
		assert.Equal(t, session.StateUnpaired, f.sess.State())
	}

	require.NoError(t, f.sess.HandleScan(hughPayload()))
	err := f.sess.HandleScan([]byte("short"))
	assert.ErrorIs(t, err, pairing.ErrTooShort)
	assert.Equal(t, session.StatePaired, f.sess.State())

	topic, ok := f.sess.Topic()
	assert.True(t, ok)
	assert.Equal(t, hughTopic, topic)

	ev := f.lastEvent(t)
	assert.Equal(t, session.EventPairingFailed, ev.Type)
	assert.Equal(t, session.StatePaired, ev.State)
	assert.ErrorIs(t, ev.Error, pairing.ErrTooShort)
}

func TestHughbulbScenario(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.sess.HandleScan(hughPayload()))
	assert.Equal(t, session.StatePaired, f.sess.State())

	sn := f.sess.Suspend()
	require.NotNil(t, sn.Topic)
	assert.Equal(t, hughTopic, *sn.Topic)
	assert.Equal(t, make([]byte, 32), sn.Key)

	cmd := command.Command{R: 255, G: 0, B: 128}
	require.NoError(t, f.sess.RequestCommand(context.Background(), cmd))

	msgs := f.pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, hughTopic, msgs[0].Topic)
	assert.Len(t, msgs[0].Payload, command.CiphertextLength)

	plain, err := secretbox.Open(nil, msgs[0].Payload, command.MessageSequence, command.ContextTag[:], make([]byte, 32))
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0, 128}, plain)

	ev := f.lastEvent(t)
	assert.Equal(t, session.EventCommandSent, ev.Type)
	require.NotNil(t, ev.Command)
	assert.Equal(t, cmd, *ev.Command)
}

func TestCommandWhenUnpairedSkipsEncoder(t *testing.T) {
	f := newFixture(t)

	err := f.sess.RequestCommand(context.Background(), command.Command{R: 1})
	assert.ErrorIs(t, err, command.ErrNoCredential)
	assert.Zero(t, f.prim.count())
	assert.Empty(t, f.pub.Messages())
	assert.Equal(t, session.EventCommandFailed, f.lastEvent(t).Type)
}

func TestRevokeThenCommandFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.HandleScan(hughPayload()))

	f.sess.Revoke()
	assert.Equal(t, session.StateUnpaired, f.sess.State())
	_, ok := f.sess.Topic()
	assert.False(t, ok)
	assert.Equal(t, session.EventRevoked, f.lastEvent(t).Type)
	assert.Equal(t, hughTopic, f.lastEvent(t).Topic)

	err := f.sess.RequestCommand(context.Background(), command.Command{G: 1})
	assert.ErrorIs(t, err, command.ErrNoCredential)
	assert.Zero(t, f.prim.count())
}

func TestRevokeNamesCurrentTopic(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.HandleScan(hughPayload()))
	require.NoError(t, f.sess.HandleScan(append([]byte("abcdefgh"), make([]byte, 32)...)))

	f.sess.Revoke()
	assert.Equal(t, "hugh-the-lightbulb/abcdefgh", f.lastEvent(t).Topic)

	last := f.plog.events[len(f.plog.events)-1]
	assert.Equal(t, hlog.CategoryState, last.Category)
	assert.Equal(t, "hugh-the-lightbulb/abcdefgh", last.Topic)
}

func TestRevokeWhenUnpairedIsNoop(t *testing.T) {
	f := newFixture(t)
	f.sess.Revoke()
	f.sess.Revoke()
	assert.Empty(t, f.events)
	assert.Empty(t, f.plog.events)
}

func TestSuspendResume(t *testing.T) {
	f := newFixture(t)
	raw := hughPayload()
	for i := 8; i < 40; i++ {
		raw[i] = byte(i * 7)
	}
	require.NoError(t, f.sess.HandleScan(raw))
	sn := f.sess.Suspend()

	g := newFixture(t)
	require.NoError(t, g.sess.Resume(sn))
	assert.Equal(t, session.StatePaired, g.sess.State())

	topic, _ := g.sess.Topic()
	assert.Equal(t, hughTopic, topic)
	again := g.sess.Suspend()
	assert.Equal(t, raw[8:40], again.Key)
	assert.Equal(t, session.EventResumed, g.lastEvent(t).Type)

	require.NoError(t, g.sess.RequestCommand(context.Background(), command.Command{B: 9}))
	msg := g.pub.Messages()[0]
	plain, err := secretbox.Open(nil, msg.Payload, 0, command.ContextTag[:], raw[8:40])
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 9}, plain)
}

func TestResumeAbsentTopicUnpairs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.HandleScan(hughPayload()))

	require.NoError(t, f.sess.Resume(credential.Snapshot{}))
	assert.Equal(t, session.StateUnpaired, f.sess.State())
}

func TestResumeInvalidKeepsState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.HandleScan(hughPayload()))

	topic := hughTopic
	err := f.sess.Resume(credential.Snapshot{Key: []byte{1, 2}, Topic: &topic})
	assert.ErrorIs(t, err, credential.ErrInvalidSnapshot)
	assert.Equal(t, session.StatePaired, f.sess.State())
	assert.Equal(t, make([]byte, 32), f.sess.Suspend().Key)
}

func TestPublishRejectedKeepsCredential(t *testing.T) {
	pub := mocks.NewMockPublisher(t)
	pub.EXPECT().
		Publish(mock.Anything, hughTopic, mock.MatchedBy(func(p []byte) bool { return len(p) == 39 })).
		Return(transport.ErrSendRejected).
		Once()

	sess, err := session.New(session.Config{Publisher: pub})
	require.NoError(t, err)
	require.NoError(t, sess.HandleScan(hughPayload()))

	err = sess.RequestCommand(context.Background(), command.Command{R: 1, G: 2, B: 3})
	assert.ErrorIs(t, err, transport.ErrSendRejected)
	assert.Equal(t, session.StatePaired, sess.State())

	topic, ok := sess.Topic()
	assert.True(t, ok)
	assert.Equal(t, hughTopic, topic)
	assert.Equal(t, make([]byte, 32), sess.Suspend().Key)
}

func TestPrimitiveFailureNothingPublished(t *testing.T) {
	f := newFixture(t)
	f.prim.err = errors.New("rng exhausted")
	require.NoError(t, f.sess.HandleScan(hughPayload()))

	err := f.sess.RequestCommand(context.Background(), command.Command{R: 1})
	assert.ErrorIs(t, err, command.ErrPrimitiveFailure)
	assert.Empty(t, f.pub.Messages())
	assert.Equal(t, session.StatePaired, f.sess.State())

	var found bool
	for _, e := range f.plog.events {
		if e.Error != nil && e.Error.Stage == hlog.StageEncrypt {
			found = true
			require.NotNil(t, e.Error.Code)
			assert.Equal(t, -1, *e.Error.Code)
			assert.Equal(t, hughTopic, e.Topic)
		}
	}
	assert.True(t, found)
}

func TestCiphertextsDiffer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.HandleScan(hughPayload()))

	cmd := command.Command{R: 10, G: 20, B: 30}
	require.NoError(t, f.sess.RequestCommand(context.Background(), cmd))
	require.NoError(t, f.sess.RequestCommand(context.Background(), cmd))

	msgs := f.pub.Messages()
	require.Len(t, msgs, 2)
	assert.False(t, bytes.Equal(msgs[0].Payload, msgs[1].Payload))
}

func TestProtocolLogNeverCarriesKey(t *testing.T) {
	f := newFixture(t)
	raw := hughPayload()
	copy(raw[8:], bytes.Repeat([]byte{0xA5}, 32))
	require.NoError(t, f.sess.HandleScan(raw))
	require.NoError(t, f.sess.RequestCommand(context.Background(), command.Command{R: 1}))
	f.sess.Revoke()

	for _, e := range f.plog.events {
		data, err := hlog.EncodeEvent(e)
		require.NoError(t, err)
		assert.False(t, bytes.Contains(data, bytes.Repeat([]byte{0xA5}, 8)), "event %v leaks key bytes", e.Category)
		assert.Equal(t, "test-session", e.SessionID)
	}

	var categories []hlog.Category
	for _, e := range f.plog.events {
		categories = append(categories, e.Category)
	}
	assert.Equal(t, []hlog.Category{
		hlog.CategoryPairing, hlog.CategoryState,
		hlog.CategoryCommand,
		hlog.CategoryPairing, hlog.CategoryState,
	}, categories)
}

func TestHandleDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sess.Handle(ctx, session.ScanSucceeded{Raw: hughPayload()}))
	require.NoError(t, f.sess.Handle(ctx, session.CommandRequested{Command: command.Command{G: 255}}))
	require.NoError(t, f.sess.Handle(ctx, session.RevokeRequested{}))

	err := f.sess.Handle(ctx, session.CommandRequested{})
	assert.ErrorIs(t, err, command.ErrNoCredential)

	var types []session.EventType
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []session.EventType{
		session.EventPaired, session.EventCommandSent, session.EventRevoked, session.EventCommandFailed,
	}, types)
}

func TestHandleScanText(t *testing.T) {
	f := newFixture(t)
	text := "HUGHBULB" + strings.Repeat("é", 32)
	require.NoError(t, f.sess.HandleScanText(text))
	assert.Equal(t, bytes.Repeat([]byte{0xe9}, 32), f.sess.Suspend().Key)

	require.NotEmpty(t, f.plog.events)
	first := f.plog.events[0]
	require.NotNil(t, first.Pairing)
	assert.Equal(t, pairing.PayloadLength, first.Pairing.PayloadSize, "payload size counts decoded bytes, not UTF-8")

	err := f.sess.HandleScanText("HUGHBULB" + string(make([]rune, 31)) + "€")
	assert.ErrorIs(t, err, pairing.ErrCharset)
	assert.Equal(t, bytes.Repeat([]byte{0xe9}, 32), f.sess.Suspend().Key)
}

func TestConcurrentScanAndCommand(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.HandleScan(hughPayload()))

	other := append([]byte("abcdefgh"), bytes.Repeat([]byte{7}, 32)...)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = f.sess.RequestCommand(context.Background(), command.Command{R: byte(j)})
			}
		}()
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%2 == 0 {
					_ = f.sess.HandleScan(other)
				} else {
					_ = f.sess.HandleScan(hughPayload())
				}
			}
		}(i)
	}
	wg.Wait()

	keys := map[string][]byte{
		hughTopic:                     make([]byte, 32),
		"hugh-the-lightbulb/abcdefgh": bytes.Repeat([]byte{7}, 32),
	}
	for _, msg := range f.pub.Messages() {
		key, ok := keys[msg.Topic]
		require.True(t, ok, msg.Topic)
		_, err := secretbox.Open(nil, msg.Payload, 0, command.ContextTag[:], key)
		require.NoError(t, err, "payload for %s sealed with the wrong key", msg.Topic)
	}
}
