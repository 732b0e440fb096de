// Package gpio provides button input and the power-latch output with hardware
// abstraction. The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the two device buttons.
type Reader interface {
	// Read returns the logical states of BOOT and POWER.
	// The raw lines are active low with pull-ups: raw 0 = logical pressed.
	// Returns (bootPressed, powerPressed, error).
	Read() (bool, bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Latch holds the battery power rail on. Releasing it cuts power when the
// device is running from the cell.
type Latch interface {
	Assert() error
	Release() error
	Close() error
}

// Default pin definitions (BCM numbering)
const (
	DefaultPinBoot  = 17 // BOOT: cycle / continue
	DefaultPinPower = 27 // POWER: select / menu / hold to shut down
	DefaultPinLatch = 22 // VBAT latch, high = stay on
)
