package hardware

import (
	"fmt"

	"wallbox-service/internal/config"
	"wallbox-service/internal/logger"
)

// PinsFromConfig builds the line mapping from the configured offsets.
func PinsFromConfig(cfg *config.Config) Pins {
	return Pins{
		Chip: cfg.Hardware.Chip,
		Offsets: map[string]int{
			LineRelay:     cfg.Hardware.Relay,
			LineLedGreen:  cfg.Hardware.LedGreen,
			LineLedYellow: cfg.Hardware.LedYellow,
			LineLedRed:    cfg.Hardware.LedRed,
			LineButton:    cfg.Hardware.Button,
			LinePilot:     cfg.Hardware.Pilot,
		},
	}
}

// New selects the driver named in the configuration.
func New(cfg *config.Config, l *logger.Logger) (IO, error) {
	switch cfg.Hardware.Driver {
	case config.DriverGpiocdev:
		return NewLinuxHardwareIO(PinsFromConfig(cfg), l), nil
	case config.DriverStub:
		return NewStubHardwareIO(l), nil
	default:
		return nil, fmt.Errorf("unknown hardware driver: %s", cfg.Hardware.Driver)
	}
}
