package pilot

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallbox-service/internal/config"
	"wallbox-service/internal/hardware"
	"wallbox-service/internal/logger"
	"wallbox-service/internal/types"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		mv   int
		want types.PilotState
	}{
		{12000, types.PilotA},
		{11001, types.PilotA},
		{11000, types.PilotB},
		{9000, types.PilotB},
		{8000, types.PilotC},
		{6000, types.PilotC},
		{5000, types.PilotD},
		{3000, types.PilotD},
		{2000, types.PilotE},
		{501, types.PilotE},
		{500, types.PilotUnknown},
		{0, types.PilotUnknown},
		{-10000, types.PilotUnknown},
		{-10001, types.PilotF},
		{-12000, types.PilotF},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.mv), "level %d mV", tc.mv)
	}
}

type recorder struct {
	mu      sync.Mutex
	changes [][2]types.PilotState
}

func (r *recorder) listen(old, new types.PilotState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, [2]types.PilotState{old, new})
}

func (r *recorder) snapshot() [][2]types.PilotState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]types.PilotState(nil), r.changes...)
}

type fakeLevel struct {
	mv  atomic.Int64
	err atomic.Bool
}

func (f *fakeLevel) read() (int, error) {
	if f.err.Load() {
		return 0, errors.New("adc gone")
	}
	return int(f.mv.Load()), nil
}

func TestPollingMonitorNotifiesOnlyOnChange(t *testing.T) {
	level := &fakeLevel{}
	level.mv.Store(12000)

	m := NewPollingMonitor(level.read, 5*time.Millisecond, logger.Nop())
	rec := &recorder{}
	m.OnChange(rec.listen)

	require.NoError(t, m.StartMonitoring())
	defer m.StopMonitoring()

	// The first sample is taken synchronously.
	assert.Equal(t, types.PilotA, m.State())

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1, "unchanged level must not notify")

	level.mv.Store(6000)
	assert.Eventually(t, func() bool { return m.State() == types.PilotC }, time.Second, 5*time.Millisecond)

	assert.Equal(t, [][2]types.PilotState{
		{types.PilotUnknown, types.PilotA},
		{types.PilotA, types.PilotC},
	}, rec.snapshot())
}

func TestPollingMonitorKeepsStateOnReadError(t *testing.T) {
	level := &fakeLevel{}
	level.mv.Store(9000)

	m := NewPollingMonitor(level.read, 5*time.Millisecond, logger.Nop())
	require.NoError(t, m.StartMonitoring())
	defer m.StopMonitoring()
	assert.Equal(t, types.PilotB, m.State())

	level.err.Store(true)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, types.PilotB, m.State())
}

func TestPollingMonitorLifecycleIdempotent(t *testing.T) {
	level := &fakeLevel{}
	level.mv.Store(12000)
	m := NewPollingMonitor(level.read, 5*time.Millisecond, logger.Nop())

	m.StopMonitoring()
	require.NoError(t, m.StartMonitoring())
	require.NoError(t, m.StartMonitoring())
	m.StopMonitoring()
	m.StopMonitoring()

	require.NoError(t, m.StartMonitoring())
	m.StopMonitoring()
}

func TestDigitalLevel(t *testing.T) {
	io := hardware.NewStubHardwareIO(logger.Nop())
	read := DigitalLevel(io, hardware.LinePilot)

	mv, err := read()
	require.NoError(t, err)
	assert.Equal(t, types.PilotA, Classify(mv))

	require.NoError(t, io.SetInput(hardware.LinePilot, false))
	mv, err = read()
	require.NoError(t, err)
	assert.Equal(t, types.PilotC, Classify(mv))

	_, err = DigitalLevel(io, "nope")()
	assert.Error(t, err)
}

func TestAdcLevelMissingDevice(t *testing.T) {
	_, err := AdcLevel("iio:device-missing", 0, 1, 0)()
	assert.Error(t, err)
}

func TestRemoteMonitor(t *testing.T) {
	m := NewRemoteMonitor(logger.Nop())
	rec := &recorder{}
	m.OnChange(rec.listen)

	assert.True(t, m.HandleMessage([]byte{MessageTag, 2}), "consumed even when stopped")
	assert.Equal(t, types.PilotUnknown, m.State())

	require.NoError(t, m.StartMonitoring())
	assert.Equal(t, types.PilotA, m.State())

	assert.True(t, m.HandleMessage([]byte{MessageTag, byte(types.PilotB)}))
	assert.True(t, m.HandleMessage([]byte{MessageTag, byte(types.PilotB)}))
	assert.True(t, m.HandleMessage([]byte{MessageTag, 9}))
	assert.Equal(t, types.PilotUnknown, m.State())

	assert.False(t, m.HandleMessage([]byte{0x00, 0x05}))
	assert.False(t, m.HandleMessage([]byte{MessageTag, 1, 0}))

	m.StopMonitoring()
	m.StopMonitoring()

	assert.Equal(t, [][2]types.PilotState{
		{types.PilotUnknown, types.PilotA},
		{types.PilotA, types.PilotB},
		{types.PilotB, types.PilotUnknown},
	}, rec.snapshot())
}

func TestEncodeMessage(t *testing.T) {
	b, ok := EncodeMessage(types.PilotF)
	require.True(t, ok)
	assert.Equal(t, []byte{MessageTag, 5}, b)
	assert.True(t, IsPilotMessage(b))

	_, ok = EncodeMessage(types.PilotUnknown)
	assert.False(t, ok)
}

func TestNewSelectsStrategy(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	io := hardware.NewStubHardwareIO(logger.Nop())

	m, err := New(cfg, io, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &PollingMonitor{}, m)

	cfg.Pilot.Source = config.PilotRemote
	m, err = New(cfg, io, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &RemoteMonitor{}, m)

	cfg.Pilot.Source = config.PilotAdc
	m, err = New(cfg, io, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &PollingMonitor{}, m)

	cfg.Pilot.Source = "optical"
	_, err = New(cfg, io, logger.Nop())
	assert.Error(t, err)
}
