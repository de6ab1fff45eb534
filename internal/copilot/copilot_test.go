package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/ai"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/presence"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/room"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/session"
)

type fakeTransport struct {
	mu     sync.Mutex
	frames []models.ServerMessage
}

func (f *fakeTransport) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, v.(models.ServerMessage))
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) waitForKind(t *testing.T, kind string) models.ServerMessage {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, frame := range f.frames {
			if frame.Kind == kind {
				f.mu.Unlock()
				return frame
			}
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s frame received", kind)
	return models.ServerMessage{}
}

type stubProvider struct {
	name   string
	output string
	err    error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Invoke(ctx context.Context, kind models.TaskKind, input string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.output, nil
}

type fixture struct {
	copilot     *Copilot
	manager     *session.Manager
	broadcaster *room.Broadcaster
}

func newFixture(t *testing.T, providers ...ai.Provider) *fixture {
	t.Helper()
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)

	var mgr *session.Manager
	b := room.NewBroadcaster(room.Options{
		Instance: "test",
		OnEvict: func(roomID, sessionID string) {
			mgr.EvictSlowConsumer(roomID, sessionID)
		},
	}, logger)

	p := presence.NewStore()
	mgr = session.NewManager(session.Config{}, b, p, session.AllowAll{}, logger)

	chains := map[models.TaskKind][]string{}
	names := make([]string, len(providers))
	for i, prov := range providers {
		names[i] = prov.Name()
	}
	for _, kind := range []models.TaskKind{models.TaskTranscribe, models.TaskSummarize, models.TaskExtractActions} {
		chains[kind] = names
	}

	router := ai.NewRouter(ai.RouterConfig{
		TaskDeadline: time.Second,
		Chains:       chains,
	}, providers, ai.NewHealthTable(3, time.Minute), nil, logger)

	cop := New(b, mgr, p, router, nil, logger)
	mgr.OnDetach(cop.AnnounceLeave)

	return &fixture{copilot: cop, manager: mgr, broadcaster: b}
}

func (f *fixture) join(t *testing.T, user string) (*session.Session, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	s, err := f.manager.Attach(context.Background(), session.AttachRequest{
		UserID:    user,
		RoomID:    "room-1",
		Transport: transport,
	})
	require.NoError(t, err)
	f.copilot.AnnounceJoin(context.Background(), s)
	return s, transport
}

func TestEditFansOutAndAcks(t *testing.T) {
	f := newFixture(t)
	alice, aliceT := f.join(t, "alice")
	_, bobT := f.join(t, "bob")

	payload, _ := json.Marshal(models.EditPayload{NoteID: "note-1", Op: "insert", Pos: 0, Text: "hi", Version: 3})
	f.copilot.Handle(context.Background(), alice, models.ClientMessage{Kind: models.ClientEdit, Payload: payload})

	evt := bobT.waitForKind(t, models.ServerEvent)
	var edit models.EditPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &edit))
	assert.Equal(t, "note-1", edit.NoteID)
	assert.NotZero(t, evt.Seq)

	ack := aliceT.waitForKind(t, models.ServerEditAck)
	assert.Equal(t, evt.Seq, ack.Seq, "ack carries the assigned sequence")
}

func TestPresenceUpdateBroadcast(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.join(t, "alice")
	_, bobT := f.join(t, "bob")

	payload, _ := json.Marshal(map[string]string{"state": "typing"})
	f.copilot.Handle(context.Background(), alice, models.ClientMessage{Kind: models.ClientPresence, Payload: payload})

	frame := findPresence(t, bobT, "update")
	var p PresencePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &p))
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, models.PresenceTyping, p.State)
}

func TestInvalidPresenceStateRejected(t *testing.T) {
	f := newFixture(t)
	alice, aliceT := f.join(t, "alice")

	payload, _ := json.Marshal(map[string]string{"state": "away"})
	f.copilot.Handle(context.Background(), alice, models.ClientMessage{Kind: models.ClientPresence, Payload: payload})

	frame := aliceT.waitForKind(t, models.ServerError)
	var e models.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &e))
	assert.Equal(t, "bad_request", e.Code)
}

func TestUnknownKindRejected(t *testing.T) {
	f := newFixture(t)
	alice, aliceT := f.join(t, "alice")

	f.copilot.Handle(context.Background(), alice, models.ClientMessage{Kind: "dance"})

	frame := aliceT.waitForKind(t, models.ServerError)
	var e models.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &e))
	assert.Equal(t, "bad_request", e.Code)
}

func TestSpeechChunkBroadcastsTranscript(t *testing.T) {
	f := newFixture(t, &stubProvider{name: "openai", output: "hello everyone"})
	alice, _ := f.join(t, "alice")
	_, bobT := f.join(t, "bob")

	payload, _ := json.Marshal(models.SpeechChunkPayload{ChunkIndex: 2, Audio: "b64data"})
	f.copilot.Handle(context.Background(), alice, models.ClientMessage{Kind: models.ClientSpeechChunk, Payload: payload})
	f.copilot.Wait()

	frame := bobT.waitForKind(t, models.ServerAIResult)
	var result AIResultPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &result))
	assert.Equal(t, models.TaskTranscribe, result.Kind)
	assert.Equal(t, "hello everyone", result.Output)
	assert.Equal(t, "openai", result.Provider)
	assert.Equal(t, int64(2), result.ChunkIndex)
	assert.False(t, result.Degraded)
}

func TestSpeechChunkDegradesOnProviderFailure(t *testing.T) {
	f := newFixture(t, &stubProvider{name: "openai", err: errors.New("upstream down")})
	alice, aliceT := f.join(t, "alice")

	payload, _ := json.Marshal(models.SpeechChunkPayload{ChunkIndex: 1, Audio: "b64data"})
	f.copilot.Handle(context.Background(), alice, models.ClientMessage{Kind: models.ClientSpeechChunk, Payload: payload})
	f.copilot.Wait()

	frame := aliceT.waitForKind(t, models.ServerAIResult)
	var result AIResultPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &result))
	assert.True(t, result.Degraded)
	assert.Empty(t, result.Output)
}

func TestHeartbeatKeepsSessionRegistered(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.join(t, "alice")

	before := alice.LastHeartbeat()
	time.Sleep(5 * time.Millisecond)
	f.copilot.Handle(context.Background(), alice, models.ClientMessage{Kind: models.ClientHeartbeat})
	assert.True(t, alice.LastHeartbeat().After(before))
}

func TestLeaveDetachesAndAnnounces(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.join(t, "alice")
	_, bobT := f.join(t, "bob")

	f.copilot.Handle(context.Background(), alice, models.ClientMessage{Kind: models.ClientLeave})

	assert.Equal(t, 1, f.manager.Count())
	frame := findPresence(t, bobT, "leave")
	var p PresencePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &p))
	assert.Equal(t, "alice", p.UserID)
}

// findPresence waits for a presence frame with the given action.
func findPresence(t *testing.T, transport *fakeTransport, action string) models.ServerMessage {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		transport.mu.Lock()
		for _, frame := range transport.frames {
			if frame.Kind != models.ServerPresence {
				continue
			}
			var p PresencePayload
			if json.Unmarshal(frame.Payload, &p) == nil && p.Action == action {
				transport.mu.Unlock()
				return frame
			}
		}
		transport.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no presence frame with action %q", action)
	return models.ServerMessage{}
}
