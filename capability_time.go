// capability_time.go: the time:: capability namespace.

package serval

import (
	"fmt"
	"time"

	"gitlab.com/variadico/lctime"
)

// sleepCap bounds time::sleep_ms so a script cannot stall the host.
const sleepCap = 10 * time.Second

// registerTimeCapabilities installs time::{now, unix, format, sleep_ms}.
func registerTimeCapabilities(t *CapabilityTable) {
	// time::now() -> RFC 3339 timestamp string
	t.Register("time", "now", func(args []Value) (Value, error) {
		if len(args) != 0 {
			return NullValue, fmt.Errorf("time::now expects no arguments")
		}
		return StringValue(time.Now().Format(time.RFC3339)), nil
	})

	// time::unix() -> seconds since epoch
	t.Register("time", "unix", func(args []Value) (Value, error) {
		if len(args) != 0 {
			return NullValue, fmt.Errorf("time::unix expects no arguments")
		}
		return IntValue(time.Now().Unix()), nil
	})

	// time::format(unix_seconds, layout) -> strftime-formatted string in the
	// current locale, e.g. time::format(0, "%Y-%m-%d")
	t.Register("time", "format", func(args []Value) (Value, error) {
		if len(args) != 2 || args[0].Tag != VInt || args[1].Tag != VString {
			return NullValue, fmt.Errorf("time::format expects (unix_seconds: int, layout: string)")
		}
		when := time.Unix(args[0].Data.(int64), 0).UTC()
		return StringValue(lctime.Strftime(args[1].Data.(string), when)), nil
	})

	// time::sleep_ms(ms) -> null; capped at 10s
	t.Register("time", "sleep_ms", func(args []Value) (Value, error) {
		if len(args) != 1 || args[0].Tag != VInt {
			return NullValue, fmt.Errorf("time::sleep_ms expects (ms: int)")
		}
		ms := args[0].Data.(int64)
		if ms < 0 {
			return NullValue, fmt.Errorf("time::sleep_ms duration must be non-negative")
		}
		d := time.Duration(ms) * time.Millisecond
		if d > sleepCap {
			d = sleepCap
		}
		time.Sleep(d)
		return NullValue, nil
	})
}
