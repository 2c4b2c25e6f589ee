package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"tank stop", TankStop(), "ts"},
		{"tank drive", TankDrive(150, -100), "tms150-100"},
		{"tank drive zero", TankDrive(0, 0), "tms00"},
		{"tank drive clamped", TankDrive(300, -500), "tms200-200"},
		{"tank drive edge", TankDrive(200, -200), "tms200-200"},
		{"motor forward", MotorAction(ClawGrabMotor, Forward), "m0f"},
		{"motor backward", MotorAction(BaseReachMotor, Backward), "m3b"},
		{"motor stop", MotorStop(MiddleReachMotor), "m2s"},
		{"stop all", StopAll(), "s"},
		{"status", Status(), "status"},
		{"claw grab", ClawGrab(true), "m0f"},
		{"claw rotate", ClawRotate(false), "m1b"},
		{"middle reach", MiddleReach(true), "m2f"},
		{"base reach", BaseReach(false), "m3b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.String())
		})
	}
}

func TestStopAllDistinctFromMotorStop(t *testing.T) {
	for m := Motor(0); m < MotorCount; m++ {
		assert.NotEqual(t, StopAll(), MotorStop(m))
	}
}

func TestClampSpeed(t *testing.T) {
	assert.Equal(t, 200, ClampSpeed(201))
	assert.Equal(t, -200, ClampSpeed(-1000))
	assert.Equal(t, 17, ClampSpeed(17))
}

func TestSliderToSpeed(t *testing.T) {
	assert.Equal(t, -200, SliderToSpeed(0))
	assert.Equal(t, 0, SliderToSpeed(200))
	assert.Equal(t, 200, SliderToSpeed(400))
	assert.Equal(t, 200, SliderToSpeed(999))
}

func TestParseMotor(t *testing.T) {
	m, err := ParseMotor("2")
	require.NoError(t, err)
	assert.Equal(t, MiddleReachMotor, m)

	m, err = ParseMotor("claw-rotate")
	require.NoError(t, err)
	assert.Equal(t, ClawRotateMotor, m)
	assert.Equal(t, "claw-rotate", m.String())

	_, err = ParseMotor("4")
	require.ErrorIs(t, err, ErrInvalidCommand)

	_, err = ParseMotor("elbow")
	require.ErrorIs(t, err, ErrInvalidCommand)
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{"f": Forward, "backward": Backward, "stop": Stop} {
		got, err := ParseAction(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.True(t, got.Valid())
	}

	_, err := ParseAction("x")
	require.ErrorIs(t, err, ErrInvalidCommand)
	assert.False(t, Action('x').Valid())
}

func TestParse(t *testing.T) {
	cmd, err := Parse("tms150-100")
	require.NoError(t, err)
	assert.Equal(t, Command("tms150-100"), cmd)

	for _, bad := range []string{"", "ts\n", "m0f\r", "café"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidCommand, "token %q", bad)
	}
}
