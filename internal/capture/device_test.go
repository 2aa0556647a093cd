package capture

import (
	"errors"
	"testing"
)

func TestSelectDevice(t *testing.T) {
	front := Device{ID: "0", Label: "FaceTime HD Camera", Facing: FacingUser}
	back := Device{ID: "1", Label: "Back Camera"}
	rear := Device{ID: "2", Label: "USB Rear Cam"}
	env := Device{ID: "3", Label: "Integrated", Facing: FacingEnvironment}

	tests := []struct {
		name    string
		devices []Device
		policy  Policy
		id      string
		want    string
	}{
		{"environment prefers facing", []Device{front, back, env}, PolicyEnvironment, "", "3"},
		{"environment falls back to label", []Device{front, rear}, PolicyEnvironment, "", "2"},
		{"environment falls back to first", []Device{front}, PolicyEnvironment, "", "0"},
		{"back-label matches back only", []Device{front, rear, back}, PolicyBackLabel, "", "1"},
		{"back-label ignores facing", []Device{front, env}, PolicyBackLabel, "", "0"},
		{"explicit id wins", []Device{front, back, env}, PolicyEnvironment, "0", "0"},
		{"empty policy is environment", []Device{front, env}, "", "", "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectDevice(tt.devices, tt.policy, tt.id)
			if err != nil {
				t.Fatalf("SelectDevice failed: %v", err)
			}
			if got.ID != tt.want {
				t.Errorf("got device %q, want %q", got.ID, tt.want)
			}
		})
	}
}

func TestSelectDeviceErrors(t *testing.T) {
	if _, err := SelectDevice(nil, PolicyEnvironment, ""); !errors.Is(err, ErrNoDevice) {
		t.Errorf("empty list: expected ErrNoDevice, got %v", err)
	}
	devs := []Device{{ID: "0"}}
	if _, err := SelectDevice(devs, PolicyEnvironment, "9"); !errors.Is(err, ErrNoDevice) {
		t.Errorf("missing id: expected ErrNoDevice, got %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyEnvironment, false},
		{"environment", PolicyEnvironment, false},
		{" Back-Label ", PolicyBackLabel, false},
		{"front", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStartErrorUnwrap(t *testing.T) {
	cause := errors.New("busy")
	err := error(&StartError{Device: Device{ID: "0"}, Cause: cause})
	if !errors.Is(err, ErrUnavailable) {
		t.Error("StartError should match ErrUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("StartError should match its cause")
	}
	var se *StartError
	if !errors.As(err, &se) || se.Device.ID != "0" {
		t.Error("errors.As should recover the StartError")
	}
}
