package routing

import (
	"fmt"
	"sync/atomic"
)

// Instrument is a tokenized reference to a real underlying payment method.
type Instrument struct {
	ID    string `json:"instrument_id"`
	Token string `json:"opaque_token"`
}

var ErrUnconfiguredDefault = fmt.Errorf("instrument mapping has no default entry")

// Selector resolves a routing category to a payment instrument. The mapping
// is held as an immutable snapshot so every decision reads a consistent
// view; Swap replaces the whole snapshot atomically for hot reload.
type Selector struct {
	snapshot atomic.Value // map[Category]Instrument
}

// NewSelector validates the mapping and builds a selector. A missing default
// entry fails here, at startup, never at request time.
func NewSelector(instruments map[Category]Instrument) (*Selector, error) {
	if err := validateInstruments(instruments); err != nil {
		return nil, err
	}
	s := &Selector{}
	s.snapshot.Store(cloneInstruments(instruments))
	return s, nil
}

// Select returns the instrument configured for category. Categories without
// an explicit entry fall back to the default instrument, so the mapping is
// total.
func (s *Selector) Select(category Category) Instrument {
	m := s.snapshot.Load().(map[Category]Instrument)
	if instrument, ok := m[category]; ok && instrument.ID != "" {
		return instrument
	}
	return m[CategoryDefault]
}

// Swap validates and atomically replaces the instrument mapping.
func (s *Selector) Swap(instruments map[Category]Instrument) error {
	if err := validateInstruments(instruments); err != nil {
		return err
	}
	s.snapshot.Store(cloneInstruments(instruments))
	return nil
}

func validateInstruments(m map[Category]Instrument) error {
	if d, ok := m[CategoryDefault]; !ok || d.ID == "" {
		return ErrUnconfiguredDefault
	}
	return nil
}

func cloneInstruments(m map[Category]Instrument) map[Category]Instrument {
	out := make(map[Category]Instrument, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DefaultInstruments is the built-in category to card mapping.
func DefaultInstruments() map[Category]Instrument {
	mk := func(id string) Instrument {
		return Instrument{ID: id, Token: "tok_" + id}
	}
	return map[Category]Instrument{
		CategoryDining:    mk("chase_sapphire"),
		CategoryTravel:    mk("amex_platinum"),
		CategoryFuel:      mk("amex_gold"),
		CategoryGrocery:   mk("amex_gold"),
		CategoryOnline:    mk("chase_freedom"),
		CategoryStreaming: mk("chase_freedom"),
		CategoryDefault:   mk("default_card"),
	}
}
