package engine

import (
	"encoding/json"
	"log"

	"trailhead/internal/snapshot"
)

// Component is a sub-engine that persists private state inside the
// snapshot. Each component owns one key in the component_state map and
// a typed state struct behind it.
type Component interface {
	Key() string
	ExportState() (json.RawMessage, error)
	ImportState(json.RawMessage) error
}

// importComponents hydrates each component from the snapshot. A missing
// key leaves the component at its defaults; a corrupt payload is logged
// and reset rather than failing the turn.
func importComponents(snap snapshot.Snapshot, comps []Component) {
	for _, c := range comps {
		raw, ok := snap.ComponentState[c.Key()]
		if !ok || len(raw) == 0 {
			continue
		}
		if err := c.ImportState(raw); err != nil {
			log.Printf("component %s: bad stored state, resetting: %v", c.Key(), err)
		}
	}
}

// exportComponents writes each component's state back into the snapshot.
func exportComponents(snap *snapshot.Snapshot, comps []Component) error {
	if snap.ComponentState == nil {
		snap.ComponentState = map[string]json.RawMessage{}
	}
	for _, c := range comps {
		raw, err := c.ExportState()
		if err != nil {
			return err
		}
		snap.ComponentState[c.Key()] = raw
	}
	return nil
}
