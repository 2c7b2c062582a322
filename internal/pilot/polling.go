package pilot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wallbox-service/internal/hardware"
	"wallbox-service/internal/logger"
	"wallbox-service/internal/types"
)

// Levels reported for a digital CP input. A high line reads as no vehicle,
// a low line as vehicle ready.
const (
	DigitalHighMillivolts = 12000
	DigitalLowMillivolts  = 6000
)

// LevelReader samples the CP signal in millivolts.
type LevelReader func() (int, error)

// DigitalLevel approximates the CP level from a digital input line.
func DigitalLevel(io DigitalReader, channel string) LevelReader {
	return func() (int, error) {
		high, err := io.ReadDigitalInput(channel)
		if err != nil {
			return 0, err
		}
		if high {
			return DigitalHighMillivolts, nil
		}
		return DigitalLowMillivolts, nil
	}
}

// AdcLevel reads the CP level from an IIO ADC channel.
func AdcLevel(device string, channel int, scale float64, offset int) LevelReader {
	return func() (int, error) {
		raw, err := hardware.ReadAdcValue(device, channel)
		if err != nil {
			return 0, err
		}
		return int(float64(raw)*scale) + offset, nil
	}
}

// PollingMonitor samples a LevelReader on a fixed interval.
type PollingMonitor struct {
	notifier
	read     LevelReader
	interval time.Duration
	logger   *logger.Logger
	errLog   rate.Sometimes

	lifecycle sync.Mutex
	stop      chan struct{}
	wg        sync.WaitGroup
}

func NewPollingMonitor(read LevelReader, interval time.Duration, l *logger.Logger) *PollingMonitor {
	return &PollingMonitor{
		notifier: notifier{state: types.PilotUnknown},
		read:     read,
		interval: interval,
		logger:   l.WithTag("Pilot"),
		errLog:   rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

func (m *PollingMonitor) StartMonitoring() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.stop != nil {
		return nil
	}

	m.sample()

	m.stop = make(chan struct{})
	m.wg.Add(1)
	go m.loop(m.stop)
	m.logger.Infof("Polling CP every %v", m.interval)
	return nil
}

func (m *PollingMonitor) StopMonitoring() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.stop == nil {
		return
	}
	close(m.stop)
	m.wg.Wait()
	m.stop = nil
	m.logger.Infof("CP polling stopped")
}

func (m *PollingMonitor) loop(stop <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

// sample keeps the previous state when the read fails.
func (m *PollingMonitor) sample() {
	mv, err := m.read()
	if err != nil {
		m.errLog.Do(func() {
			m.logger.Warnf("Failed to read CP level: %v", err)
		})
		return
	}
	next := Classify(mv)
	old := m.State()
	if m.update(next) {
		m.logger.Infof("CP %s -> %s (%d mV)", old, next, mv)
	}
}

var _ Monitor = (*PollingMonitor)(nil)
