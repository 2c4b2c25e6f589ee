package bridge

import (
	"fmt"

	"github.com/arloliu/go-tankbot/command"
)

// Intent types accepted from clients.
const (
	IntentDrive   = "drive"
	IntentSlider  = "slider"
	IntentStop    = "stop"
	IntentMotor   = "motor"
	IntentStopAll = "stop_all"
	IntentStatus  = "status"
	IntentRaw     = "raw"
)

// Intent is a control request sent by a client as a JSON text message.
//
//	{"type":"drive","left":150,"right":-100}
//	{"type":"slider","left":350,"right":200}
//	{"type":"motor","motor":"claw-grab","action":"f"}
//	{"type":"raw","token":"m0s"}
type Intent struct {
	Type   string `json:"type"`
	Left   int    `json:"left,omitempty"`
	Right  int    `json:"right,omitempty"`
	Motor  string `json:"motor,omitempty"`
	Action string `json:"action,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Command maps the intent to its wire command.
func (in Intent) Command() (command.Command, error) {
	switch in.Type {
	case IntentDrive:
		return command.TankDrive(in.Left, in.Right), nil

	case IntentSlider:
		return command.TankDrive(command.SliderToSpeed(in.Left), command.SliderToSpeed(in.Right)), nil

	case IntentStop:
		return command.TankStop(), nil

	case IntentStopAll:
		return command.StopAll(), nil

	case IntentStatus:
		return command.Status(), nil

	case IntentMotor:
		m, err := command.ParseMotor(in.Motor)
		if err != nil {
			return "", err
		}

		a, err := command.ParseAction(in.Action)
		if err != nil {
			return "", err
		}

		return command.MotorAction(m, a), nil

	case IntentRaw:
		return command.Parse(in.Token)

	default:
		return "", fmt.Errorf("%w: unknown intent type %q", command.ErrInvalidCommand, in.Type)
	}
}
