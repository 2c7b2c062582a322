package hardware

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"wallbox-service/internal/logger"
)

const buttonDebounce = 20 * time.Millisecond

// InputCallback is invoked from the GPIO event goroutine on input edges.
type InputCallback func(channel string, value bool) error

// IO is the digital I/O capability set shared by the real and the stub driver.
type IO interface {
	Initialize() error
	Cleanup()
	ReadDigitalInput(channel string) (bool, error)
	WriteDigitalOutput(channel string, value bool) error
	RegisterInputCallback(channel string, callback InputCallback)
}

// LinuxHardwareIO drives GPIO lines through the Linux character device.
type LinuxHardwareIO struct {
	logger         *logger.Logger
	pins           Pins
	chip           *gpiocdev.Chip
	lines          map[string]*gpiocdev.Line
	inputCallbacks map[string]InputCallback
	mu             sync.RWMutex
}

func NewLinuxHardwareIO(pins Pins, l *logger.Logger) *LinuxHardwareIO {
	return &LinuxHardwareIO{
		logger:         l.WithTag("HardwareIO"),
		pins:           pins,
		lines:          make(map[string]*gpiocdev.Line),
		inputCallbacks: make(map[string]InputCallback),
	}
}

func (io *LinuxHardwareIO) Initialize() error {
	io.logger.Infof("Initializing hardware IO on %s", io.pins.Chip)

	chip, err := gpiocdev.NewChip(io.pins.Chip, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return fmt.Errorf("failed to open GPIO chip %s: %w", io.pins.Chip, err)
	}
	io.chip = chip

	for _, name := range Outputs {
		offset, ok := io.pins.Offsets[name]
		if !ok {
			continue
		}
		// All outputs, the relay in particular, start de-energized.
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			io.Cleanup()
			return fmt.Errorf("failed to request GPIO line %d for %s: %w", offset, name, err)
		}
		io.mu.Lock()
		io.lines[name] = line
		io.mu.Unlock()
		io.logger.Infof("Configured DO %s: line=%d", name, offset)
	}

	for _, name := range Inputs {
		offset, ok := io.pins.Offsets[name]
		if !ok {
			continue
		}
		opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
		if name == LineButton {
			channel := name
			opts = append(opts,
				gpiocdev.WithBothEdges,
				gpiocdev.WithDebounce(buttonDebounce),
				gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
					io.handleEvent(channel, evt)
				}),
			)
		}
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			io.Cleanup()
			return fmt.Errorf("failed to request GPIO line %d for %s: %w", offset, name, err)
		}
		io.mu.Lock()
		io.lines[name] = line
		io.mu.Unlock()
		io.logger.Infof("Configured DI %s: line=%d", name, offset)
	}

	return nil
}

func (io *LinuxHardwareIO) handleEvent(channel string, evt gpiocdev.LineEvent) {
	value := evt.Type == gpiocdev.LineEventRisingEdge
	io.logger.Debugf("Edge on %s: value=%v seq=%d", channel, value, evt.Seqno)

	io.mu.RLock()
	callback, exists := io.inputCallbacks[channel]
	io.mu.RUnlock()

	if !exists {
		io.logger.Debugf("No callback registered for channel: %s", channel)
		return
	}
	if err := callback(channel, value); err != nil {
		io.logger.Warnf("Error in callback for %s: %v", channel, err)
	}
}

func (io *LinuxHardwareIO) RegisterInputCallback(channel string, callback InputCallback) {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.inputCallbacks[channel] = callback
	io.logger.Debugf("Registered callback for channel: %s", channel)
}

func (io *LinuxHardwareIO) ReadDigitalInput(channel string) (bool, error) {
	io.mu.RLock()
	line, ok := io.lines[channel]
	io.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("unknown digital input channel: %s", channel)
	}

	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read DI %s: %w", channel, err)
	}
	return v != 0, nil
}

func (io *LinuxHardwareIO) WriteDigitalOutput(channel string, value bool) error {
	io.mu.RLock()
	line, ok := io.lines[channel]
	io.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown digital output channel: %s", channel)
	}

	val := 0
	if value {
		val = 1
	}

	if err := line.SetValue(val); err != nil {
		return fmt.Errorf("failed to set DO %s=%v: %w", channel, value, err)
	}

	io.logger.Debugf("Set DO %s=%v", channel, value)
	return nil
}

// Cleanup drives every output low and releases the lines.
func (io *LinuxHardwareIO) Cleanup() {
	io.mu.Lock()
	defer io.mu.Unlock()

	io.logger.Infof("Cleaning up hardware resources")

	for _, name := range Outputs {
		if line, ok := io.lines[name]; ok {
			if err := line.SetValue(0); err != nil {
				io.logger.Errorf("Failed to drive %s low: %v", name, err)
			}
		}
	}

	for name, line := range io.lines {
		line.Close()
		io.logger.Debugf("Closed GPIO line for %s", name)
	}
	io.lines = make(map[string]*gpiocdev.Line)

	if io.chip != nil {
		io.chip.Close()
		io.chip = nil
	}

	io.logger.Infof("Hardware cleanup complete")
}
