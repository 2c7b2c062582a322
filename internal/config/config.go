package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"

	DriverStub     = "stub"
	DriverGpiocdev = "gpiocdev"

	PilotPolling = "polling"
	PilotAdc     = "adc"
	PilotRemote  = "remote"
)

// Config is loaded once at startup and handed to the components that need it.
type Config struct {
	Mode string `yaml:"mode" env:"WALLBOX_MODE" env-default:"development" env-description:"development or production"`

	Hardware struct {
		Driver    string `yaml:"driver" env:"WALLBOX_GPIO_DRIVER" env-description:"stub or gpiocdev, derived from mode when empty"`
		Chip      string `yaml:"chip" env:"WALLBOX_GPIO_CHIP" env-default:"gpiochip0"`
		Relay     int    `yaml:"relay" env:"WALLBOX_PIN_RELAY" env-default:"21"`
		LedGreen  int    `yaml:"led_green" env:"WALLBOX_PIN_LED_GREEN" env-default:"17"`
		LedYellow int    `yaml:"led_yellow" env:"WALLBOX_PIN_LED_YELLOW" env-default:"27"`
		LedRed    int    `yaml:"led_red" env:"WALLBOX_PIN_LED_RED" env-default:"22"`
		Button    int    `yaml:"button" env:"WALLBOX_PIN_BUTTON" env-default:"23"`
		Pilot     int    `yaml:"cp" env:"WALLBOX_PIN_CP" env-default:"24"`
	} `yaml:"hardware"`

	Pilot struct {
		Source     string        `yaml:"source" env:"WALLBOX_CP_SOURCE" env-default:"polling" env-description:"polling, adc or remote"`
		Interval   time.Duration `yaml:"interval" env:"WALLBOX_CP_INTERVAL" env-default:"100ms"`
		AdcDevice  string        `yaml:"adc_device" env:"WALLBOX_CP_ADC_DEVICE" env-default:"iio:device0"`
		AdcChannel int           `yaml:"adc_channel" env:"WALLBOX_CP_ADC_CHANNEL" env-default:"0"`
		// AdcScale converts raw ADC counts to millivolts.
		AdcScale float64 `yaml:"adc_scale" env:"WALLBOX_CP_ADC_SCALE" env-default:"1.0"`
		// AdcOffset is added after scaling, for front ends that shift the +-12V signal.
		AdcOffset int `yaml:"adc_offset" env:"WALLBOX_CP_ADC_OFFSET" env-default:"0"`
	} `yaml:"pilot"`

	Network struct {
		ListenAddr string `yaml:"listen_addr" env:"WALLBOX_UDP_LISTEN" env-default:"0.0.0.0:50010"`
		PeerAddr   string `yaml:"peer_addr" env:"WALLBOX_UDP_PEER" env-default:"127.0.0.1:50011"`
	} `yaml:"network"`

	Controller struct {
		TickInterval time.Duration `yaml:"tick_interval" env:"WALLBOX_TICK_INTERVAL" env-default:"100ms"`
		// PeerTimeout de-energizes the relay when the peer falls silent. Zero disables it.
		PeerTimeout    time.Duration `yaml:"peer_timeout" env:"WALLBOX_PEER_TIMEOUT" env-default:"2s"`
		StartEnabled   bool          `yaml:"start_enabled" env:"WALLBOX_START_ENABLED" env-default:"true"`
		MaxCurrentAmps int           `yaml:"max_current_amps" env:"WALLBOX_MAX_CURRENT" env-default:"16" env-description:"supply current limit reported to the peer, 6..80 A"`
	} `yaml:"controller"`

	Redis struct {
		Enabled bool   `yaml:"enabled" env:"WALLBOX_REDIS_ENABLED" env-default:"false"`
		Addr    string `yaml:"addr" env:"WALLBOX_REDIS_ADDR" env-default:"127.0.0.1:6379"`
		DB      int    `yaml:"db" env:"WALLBOX_REDIS_DB" env-default:"0"`
	} `yaml:"redis"`

	Metrics struct {
		Addr string `yaml:"addr" env:"WALLBOX_METRICS_ADDR" env-description:"listen address for /metrics, disabled when empty"`
	} `yaml:"metrics"`

	Log struct {
		Level      string `yaml:"level" env:"WALLBOX_LOG_LEVEL" env-default:"info"`
		Console    bool   `yaml:"console" env:"WALLBOX_LOG_CONSOLE" env-default:"true"`
		File       string `yaml:"file" env:"WALLBOX_LOG_FILE"`
		MaxSizeMB  int    `yaml:"max_size_mb" env:"WALLBOX_LOG_MAX_SIZE" env-default:"10"`
		MaxBackups int    `yaml:"max_backups" env:"WALLBOX_LOG_MAX_BACKUPS" env-default:"3"`
		MaxAgeDays int    `yaml:"max_age_days" env:"WALLBOX_LOG_MAX_AGE" env-default:"7"`
	} `yaml:"log"`
}

// Load reads the configuration from path, then applies environment overrides.
// An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg.applyModeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Usage returns a description of the supported environment variables.
func Usage() string {
	desc, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return err.Error()
	}
	return desc
}

func (c *Config) applyModeDefaults() {
	if c.Hardware.Driver != "" {
		return
	}
	if c.Mode == ModeProduction {
		c.Hardware.Driver = DriverGpiocdev
	} else {
		c.Hardware.Driver = DriverStub
	}
}

func (c *Config) IsProduction() bool {
	return c.Mode == ModeProduction
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		errs = append(errs, fmt.Errorf("invalid mode %q", c.Mode))
	}
	switch c.Hardware.Driver {
	case DriverStub, DriverGpiocdev:
	default:
		errs = append(errs, fmt.Errorf("invalid hardware driver %q", c.Hardware.Driver))
	}
	switch c.Pilot.Source {
	case PilotPolling, PilotAdc, PilotRemote:
	default:
		errs = append(errs, fmt.Errorf("invalid pilot source %q", c.Pilot.Source))
	}
	if c.Pilot.Interval <= 0 {
		errs = append(errs, errors.New("pilot interval must be positive"))
	}
	if c.Controller.TickInterval <= 0 {
		errs = append(errs, errors.New("tick interval must be positive"))
	}
	if c.Controller.PeerTimeout < 0 {
		errs = append(errs, errors.New("peer timeout must not be negative"))
	}
	if c.Controller.MaxCurrentAmps < 6 || c.Controller.MaxCurrentAmps > 80 {
		errs = append(errs, fmt.Errorf("max current %d A out of range 6..80", c.Controller.MaxCurrentAmps))
	}
	if c.Network.ListenAddr == "" || c.Network.PeerAddr == "" {
		errs = append(errs, errors.New("network listen and peer addresses are required"))
	}

	pins := map[string]int{
		"relay":      c.Hardware.Relay,
		"led_green":  c.Hardware.LedGreen,
		"led_yellow": c.Hardware.LedYellow,
		"led_red":    c.Hardware.LedRed,
		"button":     c.Hardware.Button,
		"cp":         c.Hardware.Pilot,
	}
	seen := make(map[int]string, len(pins))
	for name, pin := range pins {
		if pin < 0 {
			errs = append(errs, fmt.Errorf("pin %s must not be negative", name))
			continue
		}
		if other, ok := seen[pin]; ok {
			errs = append(errs, fmt.Errorf("pin %d assigned to both %s and %s", pin, other, name))
		}
		seen[pin] = name
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
