// Package command maps tank and arm intents to the wire tokens understood by
// the robot firmware.
//
// Token table:
//
//	Tank stop              ts
//	Tank drive(l, r)       tms<l><r>    each speed clamped to [-200, 200]
//	Motor action(id, a)    m<id><a>     a is f (forward), b (backward) or s (stop)
//	Stop all               s
//	Status query           status
//
// Every function here is pure; the only failure mode is silent clamping.
package command

import (
	"errors"
	"fmt"
	"strconv"
)

// Speed limits of one tank track.
const (
	MinSpeed = -200
	MaxSpeed = 200
)

// ErrInvalidCommand is returned for raw tokens that cannot be sent on the wire.
var ErrInvalidCommand = errors.New("command: invalid token")

// Command is an immutable wire token, without the line delimiter.
type Command string

// String returns the token.
func (c Command) String() string { return string(c) }

// Action is what an arm motor should do.
type Action byte

const (
	Forward  Action = 'f'
	Backward Action = 'b'
	Stop     Action = 's'
)

// Valid reports whether a is one of Forward, Backward or Stop.
func (a Action) Valid() bool {
	return a == Forward || a == Backward || a == Stop
}

func (a Action) String() string {
	switch a {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("action(%q)", byte(a))
	}
}

// ParseAction accepts "f", "b", "s" or the long names.
func ParseAction(s string) (Action, error) {
	switch s {
	case "f", "forward", "fwd":
		return Forward, nil
	case "b", "backward", "back":
		return Backward, nil
	case "s", "stop":
		return Stop, nil
	default:
		return 0, fmt.Errorf("%w: unknown motor action %q", ErrInvalidCommand, s)
	}
}

// Motor identifies one arm joint.
type Motor uint8

const (
	ClawGrabMotor Motor = iota
	ClawRotateMotor
	MiddleReachMotor
	BaseReachMotor
)

// MotorCount is the number of arm joints.
const MotorCount = 4

var motorNames = [MotorCount]string{"claw-grab", "claw-rotate", "middle-reach", "base-reach"}

func (m Motor) String() string {
	if int(m) < MotorCount {
		return motorNames[m]
	}

	return "motor-" + strconv.Itoa(int(m))
}

// ParseMotor accepts a motor id ("0".."3") or a joint name.
func ParseMotor(s string) (Motor, error) {
	for i, name := range motorNames {
		if s == name {
			return Motor(i), nil
		}
	}

	id, err := strconv.Atoi(s)
	if err != nil || id < 0 || id >= MotorCount {
		return 0, fmt.Errorf("%w: unknown motor %q", ErrInvalidCommand, s)
	}

	return Motor(id), nil
}

// TankStop stops both tracks.
func TankStop() Command { return "ts" }

// TankDrive sets both track speeds. Out-of-range speeds are clamped.
func TankDrive(left, right int) Command {
	return Command("tms" + strconv.Itoa(ClampSpeed(left)) + strconv.Itoa(ClampSpeed(right)))
}

// MotorAction drives one arm motor.
func MotorAction(m Motor, a Action) Command {
	return Command("m" + strconv.Itoa(int(m)) + string(rune(a)))
}

// MotorStop stops one arm motor.
func MotorStop(m Motor) Command { return MotorAction(m, Stop) }

// StopAll stops the tracks and every arm motor.
func StopAll() Command { return "s" }

// Status asks the robot for a free-form status line.
func Status() Command { return "status" }

func ClawGrab(forward bool) Command    { return MotorAction(ClawGrabMotor, direction(forward)) }
func ClawRotate(forward bool) Command  { return MotorAction(ClawRotateMotor, direction(forward)) }
func MiddleReach(forward bool) Command { return MotorAction(MiddleReachMotor, direction(forward)) }
func BaseReach(forward bool) Command   { return MotorAction(BaseReachMotor, direction(forward)) }

func direction(forward bool) Action {
	if forward {
		return Forward
	}

	return Backward
}

// ClampSpeed limits speed to [MinSpeed, MaxSpeed].
func ClampSpeed(speed int) int {
	return max(MinSpeed, min(MaxSpeed, speed))
}

// SliderToSpeed maps a 0..400 slider position, centered at 200, to a track speed.
func SliderToSpeed(progress int) int {
	return ClampSpeed(progress - MaxSpeed)
}

// Parse validates a raw token typed by a user or received from a bridge
// client. Tokens must be non-empty printable ASCII without the line delimiter.
func Parse(token string) (Command, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCommand)
	}

	for i := 0; i < len(token); i++ {
		if c := token[i]; c < 0x20 || c > 0x7e {
			return "", fmt.Errorf("%w: byte 0x%02x at offset %d", ErrInvalidCommand, c, i)
		}
	}

	return Command(token), nil
}
