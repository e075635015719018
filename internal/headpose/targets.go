package headpose

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed poses.yaml
var posesYAML []byte

// Target names one pose in the guided capture sequence.
type Target string

const (
	TargetCenter Target = "center"
	TargetLeft   Target = "left"
	TargetRight  Target = "right"
	TargetUp     Target = "up"
	TargetDown   Target = "down"
)

// Window is the angular acceptance box for one target. Yaw and pitch are
// bounded ranges; roll is symmetric around zero for every target.
type Window struct {
	YawMin    float64 `yaml:"yaw_min"`
	YawMax    float64 `yaml:"yaw_max"`
	PitchMin  float64 `yaml:"pitch_min"`
	PitchMax  float64 `yaml:"pitch_max"`
	RollLimit float64 `yaml:"roll_limit"`
}

// TargetSet is the full capture protocol: the ordered targets, how many
// consecutive accepted frames a capture requires, and the per-target windows.
type TargetSet struct {
	HoldFrames int               `yaml:"hold_frames"`
	Order      []Target          `yaml:"order"`
	Windows    map[Target]Window `yaml:"targets"`
}

var (
	defaultSet  TargetSet
	defaultOnce sync.Once
)

// DefaultTargets returns the shipped capture protocol parsed from the
// embedded YAML. The embed is part of the binary, so a parse failure is a
// build defect and panics.
func DefaultTargets() TargetSet {
	defaultOnce.Do(func() {
		if err := yaml.Unmarshal(posesYAML, &defaultSet); err != nil {
			panic("failed to unmarshal embedded poses.yaml: " + err.Error())
		}
		for _, target := range defaultSet.Order {
			if _, ok := defaultSet.Windows[target]; !ok {
				panic(fmt.Sprintf("embedded poses.yaml: target %q has no window", target))
			}
		}
	})
	return defaultSet
}

// Acceptable checks the measured angles against one target's window and
// returns guidance for the subject. The target's primary axis is checked
// first (yaw for center/left/right, pitch for up/down), then the secondary
// axis, then roll, so the guidance always names the most important
// correction.
func (ts TargetSet) Acceptable(yaw, pitch, roll float64, target Target) (bool, string) {
	w, ok := ts.Windows[target]
	if !ok {
		return false, "Unknown target pose"
	}

	switch target {
	case TargetCenter:
		if yaw < w.YawMin || yaw > w.YawMax {
			direction := "right"
			if yaw < 0 {
				direction = "left"
			}
			return false, fmt.Sprintf("Turn face slightly %s", direction)
		}
		if pitch < w.PitchMin || pitch > w.PitchMax {
			direction := "up"
			if pitch < 0 {
				direction = "down"
			}
			return false, fmt.Sprintf("Tilt head slightly %s", direction)
		}
		if roll < -w.RollLimit || roll > w.RollLimit {
			return false, "Keep head straight (don't tilt)"
		}
		return true, "Perfect! Hold steady..."

	case TargetLeft:
		if yaw > w.YawMax {
			return false, "Turn head more to the LEFT"
		}
		if yaw < w.YawMin {
			return false, "Turn head less to the left"
		}
		if pitch < w.PitchMin || pitch > w.PitchMax {
			return false, "Keep head level (don't look up/down)"
		}
		if roll < -w.RollLimit || roll > w.RollLimit {
			return false, "Keep head straight (don't tilt)"
		}
		return true, "Perfect left angle! Hold steady..."

	case TargetRight:
		if yaw < w.YawMin {
			return false, "Turn head more to the RIGHT"
		}
		if yaw > w.YawMax {
			return false, "Turn head less to the right"
		}
		if pitch < w.PitchMin || pitch > w.PitchMax {
			return false, "Keep head level (don't look up/down)"
		}
		if roll < -w.RollLimit || roll > w.RollLimit {
			return false, "Keep head straight (don't tilt)"
		}
		return true, "Perfect right angle! Hold steady..."

	case TargetUp:
		if pitch < w.PitchMin {
			return false, "Tilt head UP more"
		}
		if pitch > w.PitchMax {
			return false, "Tilt head down slightly"
		}
		if yaw < w.YawMin || yaw > w.YawMax {
			return false, "Keep face forward (don't turn left/right)"
		}
		if roll < -w.RollLimit || roll > w.RollLimit {
			return false, "Keep head straight (don't tilt sideways)"
		}
		return true, "Perfect up angle! Hold steady..."

	case TargetDown:
		if pitch > w.PitchMax {
			return false, "Tilt head DOWN more"
		}
		if pitch < w.PitchMin {
			return false, "Tilt head up slightly"
		}
		if yaw < w.YawMin || yaw > w.YawMax {
			return false, "Keep face forward (don't turn left/right)"
		}
		if roll < -w.RollLimit || roll > w.RollLimit {
			return false, "Keep head straight (don't tilt sideways)"
		}
		return true, "Perfect down angle! Hold steady..."
	}

	return false, "Unknown target pose"
}
