package signal

import (
	"fmt"
	"strings"
)

// Color is the state of one approach's signal head.
type Color int

const (
	Red Color = iota
	Yellow
	Green
)

func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Yellow:
		return "yellow"
	case Green:
		return "green"
	default:
		return fmt.Sprintf("Color(%d)", int(c))
	}
}

// MarshalText encodes the color by name so JSON consumers see "green", not 2.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(b []byte) error {
	for _, v := range []Color{Red, Yellow, Green} {
		if v.String() == string(b) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("unknown color %q", b)
}

// Approach names the direction traffic arrives from.
type Approach int

const (
	North Approach = iota // southbound traffic, road 4
	South                 // northbound traffic, road 2
	East                  // westbound traffic, road 1
	West                  // eastbound traffic, road 0
)

// Approaches lists every approach in index order.
var Approaches = [...]Approach{North, South, East, West}

func (a Approach) String() string {
	switch a {
	case North:
		return "north"
	case South:
		return "south"
	case East:
		return "east"
	case West:
		return "west"
	default:
		return fmt.Sprintf("Approach(%d)", int(a))
	}
}

func (a Approach) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Approach) UnmarshalText(b []byte) error {
	p, err := ParseApproach(string(b))
	if err != nil {
		return err
	}
	*a = p
	return nil
}

// Valid reports whether a is one of the four approaches.
func (a Approach) Valid() bool { return a >= North && a <= West }

// ParseApproach accepts the full name or its first letter, case-insensitive.
func ParseApproach(s string) (Approach, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n":
		return North, nil
	case "south", "s":
		return South, nil
	case "east", "e":
		return East, nil
	case "west", "w":
		return West, nil
	}
	return North, fmt.Errorf("unknown approach %q", s)
}

// Pair groups two opposing approaches that always share a signal state.
type Pair int

const (
	PairNone Pair = iota
	PairNS
	PairWE
)

func (p Pair) String() string {
	switch p {
	case PairNS:
		return "NS"
	case PairWE:
		return "WE"
	default:
		return "none"
	}
}

func (p Pair) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pair) UnmarshalText(b []byte) error {
	for _, v := range []Pair{PairNone, PairNS, PairWE} {
		if v.String() == string(b) {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("unknown pair %q", b)
}

// Approaches returns the two members of the pair (nil for PairNone).
func (p Pair) Approaches() []Approach {
	switch p {
	case PairNS:
		return []Approach{North, South}
	case PairWE:
		return []Approach{East, West}
	}
	return nil
}

// Other returns the competing pair. PairNone has no competitor.
func (p Pair) Other() Pair {
	switch p {
	case PairNS:
		return PairWE
	case PairWE:
		return PairNS
	}
	return PairNone
}

// PairOf returns the pair an approach belongs to.
func PairOf(a Approach) Pair {
	if a == North || a == South {
		return PairNS
	}
	return PairWE
}

// Colors holds one color per approach, indexed by Approach.
type Colors [len(Approaches)]Color

// AllRed is the colors value with every head red.
var AllRed Colors

// Of returns the color for an approach, red for anything out of range.
func (c Colors) Of(a Approach) Color {
	if !a.Valid() {
		return Red
	}
	return c[a]
}

// Map renders the colors keyed by approach name.
func (c Colors) Map() map[string]string {
	m := make(map[string]string, len(c))
	for _, a := range Approaches {
		m[a.String()] = c[a].String()
	}
	return m
}

// Scores are the per-pair demand priorities fed to adaptive control.
type Scores struct {
	NS float64 `json:"NS"`
	WE float64 `json:"WE"`
}

// Get returns the score for p. PairNone scores zero.
func (s Scores) Get(p Pair) float64 {
	switch p {
	case PairNS:
		return s.NS
	case PairWE:
		return s.WE
	}
	return 0
}

// Best returns the higher scoring pair. Ties go to current, or to NS when
// there is no current pair.
func (s Scores) Best(current Pair) Pair {
	switch {
	case s.NS > s.WE:
		return PairNS
	case s.WE > s.NS:
		return PairWE
	case current != PairNone:
		return current
	}
	return PairNS
}
