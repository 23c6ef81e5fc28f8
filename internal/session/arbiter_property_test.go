package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// op kinds for the arbitration property
const (
	opConnect = iota
	opDisconnect
	opHandoff
	opEvict
	opKinds
)

// TestSingleDriverProperty drives a group through random sequences of
// connects, disconnects, handoffs and evictions and checks after every step
// that a non-empty group has exactly one driver, an empty one none, and that
// a departing driver is succeeded by the oldest remaining member.
func TestSingleDriverProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("exactly one driver whenever the group is non-empty", prop.ForAll(
		func(ops []int) string {
			registry, _ := newTestRegistry(t)
			const identity = "user-prop"
			next := 0

			for step, op := range ops {
				members := registry.All(identity)
				kind := op % opKinds
				pick := op / opKinds

				switch {
				case kind == opConnect || len(members) == 0:
					next++
					if _, err := registry.Register(identity, fmt.Sprintf("c%d", next), &fakeSink{}); err != nil {
						return fmt.Sprintf("step %d: register: %v", step, err)
					}

				case kind == opDisconnect:
					target := members[pick%len(members)]
					previous, _ := registry.Driver(identity)
					registry.Release(target)
					if msg := checkSuccession(registry, identity, members, target, previous); msg != "" {
						return fmt.Sprintf("step %d: %s", step, msg)
					}

				case kind == opHandoff:
					target := members[pick%len(members)]
					sender := members[(pick/2)%len(members)]
					body := fmt.Sprintf(`{"clientID":%q,"main":%q}`, sender.ID(), target.ID())
					if _, err := registry.Control(identity, []byte(body)); err != nil {
						return fmt.Sprintf("step %d: handoff: %v", step, err)
					}
					if !target.IsDriver() {
						return fmt.Sprintf("step %d: handoff target %s is not driver", step, target.ID())
					}

				case kind == opEvict:
					target := members[pick%len(members)]
					previous, _ := registry.Driver(identity)
					backdate(target, 2*time.Minute)
					registry.Sweep(identity)
					if target.Live() {
						return fmt.Sprintf("step %d: stale session %s survived the sweep", step, target.ID())
					}
					if msg := checkSuccession(registry, identity, members, target, previous); msg != "" {
						return fmt.Sprintf("step %d: %s", step, msg)
					}
				}

				drivers := driverCount(registry, identity)
				size := registry.Count(identity)
				if size > 0 && drivers != 1 {
					return fmt.Sprintf("step %d: %d sessions with %d drivers", step, size, drivers)
				}
				if size == 0 && drivers != 0 {
					return fmt.Sprintf("step %d: empty group with %d drivers", step, drivers)
				}
			}
			return ""
		},
		gen.SliceOf(gen.IntRange(0, 4*opKinds*10)),
	))

	properties.TestingRun(t)
}

// checkSuccession verifies that removing removed from before left the driver
// role where the arbitration rules say it belongs. previous is the driver
// before the removal.
func checkSuccession(r *Registry, identity string, before []*Session, removed, previous *Session) string {
	var remaining []*Session
	for _, s := range before {
		if s != removed {
			remaining = append(remaining, s)
		}
	}

	driver, ok := r.Driver(identity)
	if len(remaining) == 0 {
		if ok {
			return "driver present in empty group"
		}
		return ""
	}
	if !ok {
		return "no driver after removal"
	}

	if removed == previous {
		if driver != remaining[0] {
			return fmt.Sprintf("driver %s removed, expected %s to take over, got %s", removed.ID(), remaining[0].ID(), driver.ID())
		}
		return ""
	}
	if driver != previous {
		return fmt.Sprintf("follower %s removed but driver changed to %s", removed.ID(), driver.ID())
	}
	return ""
}
