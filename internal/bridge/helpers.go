package bridge

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// helpersJS builds the script-facing helpers on top of the Go-backed
// __print, __console, __timerRegister and __timerClear functions. The event
// loop fires timers through __timerFire(id).
const helpersJS = `
(function() {
	function stringify(v) {
		try {
			var s = JSON.stringify(v);
			return s === undefined ? String(v) : s;
		} catch (e) {
			return '<ERR>';
		}
	}

	globalThis.print = function(s) {
		__print(String(s));
	};
	globalThis.print_v = function(v) {
		__print(stringify(v));
	};

	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) {
					parts.push(stringify(arguments[j]));
				}
				__console(lvl, parts.join(', '));
			};
		})(levels[i]);
	}
	globalThis.console = con;

	var timers = globalThis.__timerCallbacks = {};
	function schedule(fn, delay, extra, repeat) {
		if (typeof fn !== 'function') return 0;
		var id = __timerRegister(Math.max(0, Math.floor(Number(delay) || 0)), repeat);
		timers[id] = { fn: fn, args: Array.prototype.slice.call(extra, 2), repeat: repeat };
		return id;
	}
	globalThis.__timerFire = function(id) {
		var t = timers[id];
		if (!t) return;
		if (!t.repeat) delete timers[id];
		t.fn.apply(null, t.args);
	};
	globalThis.setTimeout = function(fn, delay) { return schedule(fn, delay, arguments, false); };
	globalThis.setInterval = function(fn, delay) { return schedule(fn, delay, arguments, true); };
	globalThis.clearTimeout = globalThis.clearInterval = function(id) {
		if (typeof id !== 'number' || !timers[id]) return;
		__timerClear(id);
		delete timers[id];
	};

	globalThis.sleep = function(seconds) {
		var ms = Math.max(0, Math.round((Number(seconds) || 0) * 1000));
		return new Promise(function(resolve) { setTimeout(resolve, ms); });
	};

	globalThis.globals = function() {
		var names = Object.getOwnPropertyNames(globalThis).sort();
		for (var i = 0; i < names.length; i++) {
			var n = names[i];
			if (n.indexOf('__') === 0) continue;
			var t;
			try { t = typeof globalThis[n]; } catch (e) { t = 'unknown'; }
			__print(n + ': ' + t);
		}
	};
})();
`

// lockedWriter serializes writes from script and host feeds.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) println(s string) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	fmt.Fprintln(lw.w, s)
}

// InstallHelpers adds print, print_v, console, the timer functions, sleep
// and globals to the engine. Output goes to out.
func (b *Bridge) InstallHelpers(out io.Writer) error {
	w := &lockedWriter{w: out}

	if err := b.rt.RegisterFunc("__print", func(s string) {
		w.println(s)
	}); err != nil {
		return err
	}

	if err := b.rt.RegisterFunc("__console", func(level, line string) {
		w.println(line)
		b.log.Debug("console", "level", level, "line", line)
	}); err != nil {
		return err
	}

	if err := b.rt.RegisterFunc("__timerRegister", func(delayMs int, isInterval bool) int {
		delay := time.Duration(delayMs) * time.Millisecond
		return b.el.RegisterTimer(delay, isInterval)
	}); err != nil {
		return err
	}

	if err := b.rt.RegisterFunc("__timerClear", func(id int) {
		b.el.ClearTimer(id)
	}); err != nil {
		return err
	}

	return b.rt.Eval(helpersJS)
}
