package signal

import "github.com/banshee-data/intersection.sim/internal/config"

// Transition is what changed during one controller step.
type Transition struct {
	// Changed lists approaches whose color differs from the previous step.
	Changed []Approach
	// Switched is the pair that just took over from another pair after a
	// re-evaluation, PairNone otherwise. The first trigger out of idle is not
	// a switch.
	Switched Pair
}

// Controller drives a ControlStrategy and reports color edges to the
// detection layer.
type Controller struct {
	strategy ControlStrategy
	prev     Colors
	prevPair Pair
}

func NewController(strategy ControlStrategy) *Controller {
	c := &Controller{strategy: strategy}
	c.sync()
	return c
}

func (c *Controller) sync() {
	st := c.strategy.State()
	c.prev = st.Colors
	c.prevPair = st.CurrentPair
}

// Step advances the strategy by dt and returns the resulting edges.
func (c *Controller) Step(dt float64, scores Scores) Transition {
	c.strategy.Update(dt, scores)

	var tr Transition
	st := c.strategy.State()
	for _, a := range Approaches {
		if st.Colors[a] != c.prev[a] {
			tr.Changed = append(tr.Changed, a)
		}
	}
	if c.prevPair != PairNone && st.CurrentPair != PairNone && st.CurrentPair != c.prevPair {
		tr.Switched = st.CurrentPair
	}
	c.prev = st.Colors
	c.prevPair = st.CurrentPair
	return tr
}

func (c *Controller) Colors() Colors { return c.strategy.Colors() }

func (c *Controller) Color(a Approach) Color { return c.strategy.Colors().Of(a) }

func (c *Controller) State() State { return c.strategy.State() }

func (c *Controller) Mode() string { return c.strategy.Mode() }

func (c *Controller) Strategy() ControlStrategy { return c.strategy }

func (c *Controller) Reset() {
	c.strategy.Reset()
	c.sync()
}

// Apply pushes new durations into the strategy. A mode change replaces the
// strategy with a fresh one.
func (c *Controller) Apply(snap config.Snapshot) error {
	if snap.Mode == c.strategy.Mode() || (snap.Mode == "" && c.strategy.Mode() == config.ModeFixed) {
		c.strategy.Apply(snap)
		return nil
	}
	s, err := NewStrategy(snap)
	if err != nil {
		return err
	}
	c.strategy = s
	c.sync()
	return nil
}
