// Package stats reports live counters such as subscription and chat counts
// through expvar. Updates happen in a separate goroutine to avoid locking on
// main logic routines; before Init all updates are silently dropped, which
// keeps the package safe to call from tests.
package stats

import (
	"expvar"
	"net/http"
	"runtime"
	"time"

	"github.com/discoursio/core/server/logs"
)

type varUpdate struct {
	// Name of the variable to update.
	varname string
	// Integer value to publish.
	count int64
	// Treat the count as an increment as opposite to the final value.
	inc bool
}

var update chan *varUpdate

// Init sets up stats reporting through expvar at the given path.
func Init(mux *http.ServeMux, path string) {
	if path == "" || path == "-" {
		return
	}

	mux.Handle(path, expvar.Handler())
	update = make(chan *varUpdate, 1024)

	start := time.Now()
	expvar.Publish("Uptime", expvar.Func(func() any {
		return time.Since(start).Seconds()
	}))
	expvar.Publish("NumGoroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	go updater()

	logs.Info.Printf("stats: variables exposed at '%s'", path)
}

// RegisterInt publishes a new integer variable. Don't check for
// initialization. Repeated registration of the same name is a no-op: several
// component instances may share one counter.
func RegisterInt(name string) {
	if expvar.Get(name) == nil {
		expvar.Publish(name, new(expvar.Int))
	}
}

// RegisterDbStats publishes a callback reporting database connection stats.
// A nil callback is ignored.
func RegisterDbStats(f func() any) {
	if f != nil && expvar.Get("DbStats") == nil {
		expvar.Publish("DbStats", expvar.Func(f))
	}
}

// Set asynchronously assigns a new value to the variable.
func Set(name string, val int64) {
	if update != nil {
		select {
		case update <- &varUpdate{name, val, false}:
		default:
		}
	}
}

// Inc asynchronously increments (or decrements) the variable.
func Inc(name string, val int) {
	if update != nil {
		select {
		case update <- &varUpdate{name, int64(val), true}:
		default:
		}
	}
}

// Shutdown stops publishing stats.
func Shutdown() {
	if update != nil {
		update <- nil
	}
}

// The goroutine which actually publishes stats updates.
func updater() {
	for upd := range update {
		if upd == nil {
			update = nil
			// Don't care to close the channel.
			break
		}

		if ev := expvar.Get(upd.varname); ev != nil {
			// Intentional panic if the ev is not *expvar.Int.
			intvar := ev.(*expvar.Int)
			if upd.inc {
				intvar.Add(upd.count)
			} else {
				intvar.Set(upd.count)
			}
		} else {
			panic("stats: update to unknown variable " + upd.varname)
		}
	}

	logs.Info.Println("stats: shutdown")
}
