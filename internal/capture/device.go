package capture

import (
	"fmt"
	"strings"
)

// Facing is the direction a camera points, when the driver knows it.
type Facing string

const (
	FacingUnknown     Facing = ""
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

// Policy selects a device among the enumerated ones.
type Policy string

const (
	// PolicyEnvironment prefers an environment-facing camera, then a device
	// whose label looks like a back camera, then the first device.
	PolicyEnvironment Policy = "environment"

	// PolicyBackLabel prefers the first device whose label contains "back",
	// then the first device.
	PolicyBackLabel Policy = "back-label"
)

// Device is one enumerated frame source.
type Device struct {
	ID     string
	Label  string
	Facing Facing
}

func (d Device) String() string {
	if d.Label == "" {
		return d.ID
	}
	return fmt.Sprintf("%s (%s)", d.Label, d.ID)
}

// ParsePolicy validates a policy name. An empty name means PolicyEnvironment.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicyEnvironment:
		return PolicyEnvironment, nil
	case PolicyBackLabel:
		return PolicyBackLabel, nil
	default:
		return "", fmt.Errorf("unknown camera policy %q (want %q or %q)", name, PolicyEnvironment, PolicyBackLabel)
	}
}

var backKeywords = []string{"back", "rear", "environment"}

// SelectDevice picks the device to open. An explicit id wins over the policy
// and must exist. Returns ErrNoDevice when devices is empty.
func SelectDevice(devices []Device, policy Policy, id string) (Device, error) {
	if len(devices) == 0 {
		return Device{}, ErrNoDevice
	}

	if id != "" {
		for _, d := range devices {
			if d.ID == id {
				return d, nil
			}
		}
		return Device{}, fmt.Errorf("device %q: %w", id, ErrNoDevice)
	}

	switch policy {
	case PolicyBackLabel:
		if d, ok := firstLabelMatch(devices, []string{"back"}); ok {
			return d, nil
		}
	default:
		for _, d := range devices {
			if d.Facing == FacingEnvironment {
				return d, nil
			}
		}
		if d, ok := firstLabelMatch(devices, backKeywords); ok {
			return d, nil
		}
	}

	return devices[0], nil
}

func firstLabelMatch(devices []Device, keywords []string) (Device, bool) {
	for _, d := range devices {
		label := strings.ToLower(d.Label)
		for _, kw := range keywords {
			if strings.Contains(label, kw) {
				return d, true
			}
		}
	}
	return Device{}, false
}
