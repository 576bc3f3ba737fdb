package events

import "testing"

func TestEmitDeliversToSubscribers(t *testing.T) {
	e := NewEmitter()
	var got []string
	e.Subscribe(EventMatchResolved, func(ev Event) { got = append(got, "a:"+ev.TxID) })
	e.Subscribe(EventMatchResolved, func(ev Event) { got = append(got, "b:"+ev.TxID) })
	e.Subscribe(EventRoundAdvanced, func(Event) { t.Error("wrong type delivered") })

	e.Emit(Event{Type: EventMatchResolved, TxID: "tx1"})
	if len(got) != 2 || got[0] != "a:tx1" || got[1] != "b:tx1" {
		t.Errorf("deliveries: %v", got)
	}
}

func TestEmitRecoversFromPanic(t *testing.T) {
	e := NewEmitter()
	delivered := false
	e.Subscribe(EventGameCreated, func(Event) { panic("boom") })
	e.Subscribe(EventGameCreated, func(Event) { delivered = true })

	e.Emit(Event{Type: EventGameCreated})
	if !delivered {
		t.Error("subscriber after a panicking one was not called")
	}
}
