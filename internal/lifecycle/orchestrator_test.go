package lifecycle

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sensor-link/internal/command"
	"sensor-link/internal/logger"
	"sensor-link/internal/metrics"
	"sensor-link/internal/session"
	"sensor-link/internal/stats"
	"sensor-link/internal/transport"
	"sensor-link/internal/transport/memory"
)

type observed struct {
	mu       sync.Mutex
	states   []string
	commands []command.Command
}

func (o *observed) onState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s.String())
}

func (o *observed) onCommand(c command.Command) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commands = append(o.commands, c)
}

func (o *observed) States() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.states...)
}

func (o *observed) Commands() []command.Command {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]command.Command(nil), o.commands...)
}

func setup(t *testing.T) (*Orchestrator, *memory.Transport, *observed) {
	t.Helper()
	tr := memory.New("wss://broker.example.com/mqtt")
	obs := &observed{}
	o := New(tr, Options{
		Username:  "sensor",
		Password:  "hunter2",
		OnState:   obs.onState,
		OnCommand: obs.onCommand,
	}, WithLogger(logger.New(zaptest.NewLogger(t))))
	return o, tr, obs
}

// running drives the orchestrator to Running.
func running(t *testing.T) (*Orchestrator, *memory.Transport, *observed) {
	t.Helper()
	o, tr, obs := setup(t)
	require.NoError(t, tr.CompleteConnect(nil))
	require.NoError(t, tr.CompleteSubscribe(nil))
	require.Equal(t, Running, o.State().Kind)
	return o, tr, obs
}

func TestHappyPath(t *testing.T) {
	o, tr, obs := setup(t)
	assert.Equal(t, []string{"Connecting"}, obs.States())
	assert.Equal(t, Connecting, o.State().Kind)

	connects := tr.Connects()
	require.Len(t, connects, 1)
	data, err := json.Marshal(connects[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"userName":"sensor","password":"hunter2","cleanSession":true,"reconnect":true,`+
		`"keepAliveInterval":2,"timeout":5,"useSSL":true,"mqttVersion":4}`, string(data))
	assert.Empty(t, tr.Subscriptions())

	require.NoError(t, tr.CompleteConnect(nil))
	subs := tr.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, "command/inbox/#", subs[0].Filter)
	assert.Equal(t, 0, subs[0].QoS)
	assert.Equal(t, SubscribeTimeout, subs[0].Opts.SubscribeTimeout())

	require.NoError(t, tr.CompleteSubscribe(nil))
	assert.Equal(t, []string{"Connecting", "Subscribing", "Running"}, obs.States())
}

func TestConnectFailure(t *testing.T) {
	o, tr, obs := setup(t)
	require.NoError(t, tr.CompleteConnect("bad credentials"))

	assert.Equal(t, []string{"Connecting", "Failed to connect: bad credentials"}, obs.States())
	assert.Equal(t, State{Kind: Disconnected, Reason: "Failed to connect: bad credentials"}, o.State())
	assert.Empty(t, tr.Subscriptions())
}

func TestSubscribeFailure(t *testing.T) {
	o, tr, obs := setup(t)
	require.NoError(t, tr.CompleteConnect(nil))
	require.NoError(t, tr.CompleteSubscribe(map[string]interface{}{"errorCode": 128}))

	assert.Equal(t, []string{"Connecting", "Subscribing", `Failed to subscribe: {"errorCode":128}`}, obs.States())
	assert.Equal(t, Disconnected, o.State().Kind)
}

func TestConnectionLost(t *testing.T) {
	tests := []struct {
		name  string
		drive func(t *testing.T, tr *memory.Transport)
		want  []string
	}{
		{
			name:  "while connecting",
			drive: func(t *testing.T, tr *memory.Transport) {},
			want:  []string{"Connecting", "Disconnected: socket closed"},
		},
		{
			name: "while subscribing",
			drive: func(t *testing.T, tr *memory.Transport) {
				require.NoError(t, tr.CompleteConnect(nil))
			},
			want: []string{"Connecting", "Subscribing", "Disconnected: socket closed"},
		},
		{
			name: "while running",
			drive: func(t *testing.T, tr *memory.Transport) {
				require.NoError(t, tr.CompleteConnect(nil))
				require.NoError(t, tr.CompleteSubscribe(nil))
			},
			want: []string{"Connecting", "Subscribing", "Running", "Disconnected: socket closed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, tr, obs := setup(t)
			tt.drive(t, tr)
			tr.LoseConnection(errors.New("socket closed"))

			assert.Equal(t, tt.want, obs.States())
			assert.Equal(t, Disconnected, o.State().Kind)
			// no automatic reconnect from this layer
			assert.Len(t, tr.Connects(), 1)
		})
	}
}

func TestLateCompletionsIgnored(t *testing.T) {
	tests := []struct {
		name  string
		drive func(t *testing.T, tr *memory.Transport)
		want  []string
	}{
		{
			name: "subscribe success after loss",
			drive: func(t *testing.T, tr *memory.Transport) {
				require.NoError(t, tr.CompleteConnect(nil))
				tr.LoseConnection("socket closed")
				require.NoError(t, tr.CompleteSubscribe(nil))
			},
			want: []string{"Connecting", "Subscribing", "Disconnected: socket closed"},
		},
		{
			name: "subscribe failure after loss",
			drive: func(t *testing.T, tr *memory.Transport) {
				require.NoError(t, tr.CompleteConnect(nil))
				tr.LoseConnection("socket closed")
				require.NoError(t, tr.CompleteSubscribe("timeout"))
			},
			want: []string{"Connecting", "Subscribing", "Disconnected: socket closed"},
		},
		{
			name: "connect success after loss",
			drive: func(t *testing.T, tr *memory.Transport) {
				tr.LoseConnection("socket closed")
				require.NoError(t, tr.CompleteConnect(nil))
			},
			want: []string{"Connecting", "Disconnected: socket closed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, tr, obs := setup(t)
			tt.drive(t, tr)

			assert.Equal(t, tt.want, obs.States())
			assert.Equal(t, State{Kind: Disconnected, Reason: "Disconnected: socket closed"}, o.State())
			assert.LessOrEqual(t, len(tr.Subscriptions()), 1)
			assert.Zero(t, o.session.Pending())
		})
	}
}

func TestCommandsForwarded(t *testing.T) {
	_, tr, obs := running(t)

	tr.Deliver("command/inbox//abc", []byte(`{"kind":"ping"}`))
	tr.Deliver("telemetry/data", []byte(`{"kind":"ping"}`))
	tr.Deliver("command/inbox//abc", []byte(`garbage`))
	tr.Deliver("command/inbox//abc", []byte(`{"cmd":"reboot","id":"7"}`))

	cmds := obs.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "ping", cmds[0].Kind)
	assert.Equal(t, command.Command{Kind: "reboot"}, cmds[1])
}

func TestNonCommandTopicNotifiesNobody(t *testing.T) {
	st := stats.NewStatsCollector()
	tr := memory.New("ws://localhost:9001/mqtt")
	obs := &observed{}
	New(tr, Options{OnState: obs.onState, OnCommand: obs.onCommand}, WithStats(st))

	tr.Deliver("telemetry/data", []byte(`{"kind":"ping"}`))

	assert.Empty(t, obs.Commands())
	assert.Equal(t, []string{"Connecting"}, obs.States())
	snapshot := st.GetStats()
	assert.Equal(t, uint64(1), snapshot["messages_ignored"])
	assert.Equal(t, uint64(0), snapshot["commands_decoded"])
}

func TestSend(t *testing.T) {
	o, tr, _ := running(t)

	require.NoError(t, o.Send([]byte(`{"temperature":21.5}`)))
	pubs := tr.Published()
	require.Len(t, pubs, 1)
	assert.Equal(t, memory.Publication{
		Topic:    "sensor",
		Payload:  []byte(`{"temperature":21.5}`),
		QoS:      transport.QoS1,
		Retained: false,
	}, pubs[0])

	tr.LoseConnection("keepalive timeout")
	err := o.Send([]byte(`{}`))
	var tErr *session.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "not connected", tErr.Reason)
}

func TestSendConcurrent(t *testing.T) {
	o, tr, _ := running(t)

	const senders = 8
	const perSender = 25

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				assert.NoError(t, o.Send([]byte(`{}`)))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, tr.Published(), senders*perSender)
}

func TestStop(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		o, tr, obs := running(t)
		o.Stop()
		o.Stop()

		assert.Equal(t, 1, tr.Disconnects())
		assert.Equal(t, []string{"Connecting", "Subscribing", "Running", "Stopped"}, obs.States())
		assert.ErrorIs(t, o.Send([]byte(`{}`)), ErrStopped)
	})

	t.Run("not connected", func(t *testing.T) {
		o, tr, obs := setup(t)
		require.NoError(t, tr.CompleteConnect("refused"))
		o.Stop()

		assert.Zero(t, tr.Disconnects())
		assert.Equal(t, []string{"Connecting", "Failed to connect: refused", "Stopped"}, obs.States())
	})

	t.Run("late events ignored", func(t *testing.T) {
		o, tr, obs := setup(t)
		o.Stop()

		require.NoError(t, tr.CompleteConnect(nil))
		tr.LoseConnection("gone")
		tr.Deliver("command/inbox//x", []byte(`{"kind":"ping"}`))

		assert.Equal(t, []string{"Connecting", "Stopped"}, obs.States())
		assert.Empty(t, tr.Subscriptions())
		assert.Empty(t, obs.Commands())
		assert.Equal(t, Stopped, o.State().Kind)
	})
}

func TestStateMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(reg)
	require.NoError(t, err)

	tr := memory.New("tcp://localhost:1883")
	o := New(tr, Options{}, WithMetrics(m))
	require.NoError(t, tr.CompleteConnect(nil))
	require.NoError(t, tr.CompleteSubscribe(nil))
	o.Stop()

	// subscribing, running and stopped
	assert.Equal(t, 3, testutil.CollectAndCount(reg, "sensor_link_state_transitions_total"))
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
		name  string
	}{
		{State{Kind: Connecting}, "Connecting", "connecting"},
		{State{Kind: Subscribing}, "Subscribing", "subscribing"},
		{State{Kind: Running}, "Running", "running"},
		{disconnected(reasonConnectionLost, "eof"), "Disconnected: eof", "disconnected"},
		{State{Kind: Stopped}, "Stopped", "stopped"},
		{State{Kind: Kind(42)}, "Unknown", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
			assert.Equal(t, tt.name, tt.state.Kind.Name())
		})
	}
}
