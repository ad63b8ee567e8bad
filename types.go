package wasmhost

import "fmt"

// Handle identifies one loaded module for the lifetime of its registration.
// The embedding application chooses the value (typically the container name);
// it must be unique among live modules. The empty string is never a valid
// handle.
type Handle string

// Valid reports whether h can identify a module.
func (h Handle) Valid() bool { return h != "" }

// ResourceType enumerates the hardware resource categories the host routes
// events for. The set is closed: exactly Timer, GPIO and Sensor.
type ResourceType uint32

const (
	ResourceTimer ResourceType = iota
	ResourceGPIO
	ResourceSensor

	// NumResourceTypes is the size of per-type tables. Not a valid type.
	NumResourceTypes = 3
)

// Valid reports whether t is within the closed resource-type set. It is a
// pure predicate with no shared state and is safe to call from any
// goroutine without locking.
func (t ResourceType) Valid() bool { return t < NumResourceTypes }

func (t ResourceType) String() string {
	switch t {
	case ResourceTimer:
		return "timer"
	case ResourceGPIO:
		return "gpio"
	case ResourceSensor:
		return "sensor"
	default:
		return fmt.Sprintf("resource(%d)", uint32(t))
	}
}

// Event is a routed notification from a hardware producer to the module
// that owns the originating resource. It is a fixed-size value; records are
// created by producers and consumed by exactly one dispatch worker.
//
// Owner is mandatory: it is the sole routing key and must be captured when
// the event is created, from the producing caller's context. Field use per
// type follows the dispatcher argument contract:
//
//	Timer:  ID (timer id)
//	GPIO:   ID (pin), State (level)
//	Sensor: ID (sensor id), Port (channel), State (value)
type Event struct {
	Type  ResourceType
	Owner Handle
	ID    uint32
	Port  uint32
	State uint32
}

// TimerEvent builds a timer-expiration event owned by owner.
func TimerEvent(owner Handle, id uint32) Event {
	return Event{Type: ResourceTimer, Owner: owner, ID: id}
}

// GPIOEvent builds a pin-transition event owned by owner.
func GPIOEvent(owner Handle, pin, state uint32) Event {
	return Event{Type: ResourceGPIO, Owner: owner, ID: pin, State: state}
}

// SensorEvent builds a sensor-reading event owned by owner.
func SensorEvent(owner Handle, id, channel, value uint32) Event {
	return Event{Type: ResourceSensor, Owner: owner, ID: id, Port: channel, State: value}
}

// Args marshals the dispatcher arguments for the event. Arity and order are
// fixed per resource type and must match the signature the target module
// exports for that type.
func (e Event) Args() []uint32 {
	switch e.Type {
	case ResourceTimer:
		return []uint32{e.ID}
	case ResourceGPIO:
		return []uint32{e.ID, e.State}
	case ResourceSensor:
		return []uint32{e.ID, e.Port, e.State}
	default:
		return nil
	}
}
