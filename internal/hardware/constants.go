package hardware

// Line names used by the controller and the pilot monitor.
const (
	LineRelay     = "relay"
	LineLedGreen  = "led_green"
	LineLedYellow = "led_yellow"
	LineLedRed    = "led_red"
	LineButton    = "button"
	LinePilot     = "cp"

	consumer = "wallbox-service"
)

// Outputs are driven low on initialization and cleanup.
var Outputs = []string{LineRelay, LineLedGreen, LineLedYellow, LineLedRed}

// Inputs are requested as inputs; only the button delivers edge events.
var Inputs = []string{LineButton, LinePilot}

// Pins maps line names to offsets on a single GPIO chip.
type Pins struct {
	Chip    string
	Offsets map[string]int
}
