package stats

import (
	"expvar"
	"testing"
)

func TestRegisterIntIdempotent(t *testing.T) {
	RegisterInt("TestCounter")
	// A second registration must not panic and must keep the variable.
	RegisterInt("TestCounter")
	if expvar.Get("TestCounter") == nil {
		t.Fatal("TestCounter not published")
	}
}

func TestRegisterDbStats(t *testing.T) {
	// Nil callback (store not opened) is ignored.
	RegisterDbStats(nil)
	if expvar.Get("DbStats") != nil {
		t.Fatal("DbStats published for a nil callback")
	}

	RegisterDbStats(func() any { return map[string]int{"open": 3} })
	v := expvar.Get("DbStats")
	if v == nil {
		t.Fatal("DbStats not published")
	}
	if got := v.String(); got != `{"open":3}` {
		t.Errorf("DbStats = %s, want {\"open\":3}", got)
	}
	// Re-registration keeps the first callback.
	RegisterDbStats(func() any { return nil })
	if got := expvar.Get("DbStats").String(); got != `{"open":3}` {
		t.Errorf("DbStats after re-register = %s, want {\"open\":3}", got)
	}
}
