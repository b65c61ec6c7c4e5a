// Package gpio drives the valve relay and indicator LEDs and reads the manual
// valve switch.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Actuator drives the valve relay and the indicator LEDs.
type Actuator interface {
	// SetValveOpen energizes (true) or releases (false) the valve relay.
	SetValveOpen(open bool) error

	// SetIndicator turns a named indicator on or off.
	// Names without a wired LED are accepted and ignored.
	SetIndicator(name string, on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Switch reads the manual valve switch.
type Switch interface {
	// Read returns true when the switch is in the ON position.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Indicator names.
const (
	IndicatorValve = "valve"
	IndicatorMQTT  = "mqtt"
)

// Pin definitions (BCM numbering)
const (
	DefaultPinValve    = 17 // Valve relay
	DefaultPinValveLED = 27 // Green LED, lit while watering
	DefaultPinMQTTLED  = 22 // Blue LED, lit while connected
	DefaultPinSwitch   = 23 // Manual toggle switch
)

// DefaultChip is the GPIO chip on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Pins selects the lines used by RealActuator. A negative LED pin disables it.
type Pins struct {
	Chip           string
	Valve          int
	ValveActiveLow bool // relay boards that switch on a low level
	Indicators     map[string]int
	CloseOnExit    bool // drive the valve closed in Close
}
