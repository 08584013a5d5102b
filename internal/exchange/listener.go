package exchange

import "github.com/rs/zerolog/log"

// CompletionListener observes the end of an exchange. Listeners run in
// registration order; each one must call next.Proceed for the following
// listener to run.
type CompletionListener func(ex *Exchange, next *NextListener)

// NextListener hands control to the listener registered after the current
// one. Only the first call to Proceed has an effect.
type NextListener struct {
	ex        *Exchange
	index     int
	proceeded bool
}

// Proceed runs the remaining listeners.
func (n *NextListener) Proceed() {
	if n.proceeded {
		log.Debug().Int("listener", n.index).Msg("completion listener proceeded twice")
		return
	}
	n.proceeded = true
	n.ex.invoke(n.index + 1)
}

// Proceeded reports whether Proceed has been called.
func (n *NextListener) Proceeded() bool { return n.proceeded }

// AddCompletionListener registers l to run when the exchange completes.
// Listeners added after completion are never invoked.
func (ex *Exchange) AddCompletionListener(l CompletionListener) {
	if ex.completed {
		log.Warn().Str("path", ex.request.URL.Path).Msg("completion listener added after exchange completed")
		return
	}
	ex.listeners = append(ex.listeners, l)
}

func (ex *Exchange) complete() {
	if ex.completed {
		return
	}
	ex.completed = true
	ex.invoke(0)
}

func (ex *Exchange) invoke(i int) {
	if i >= len(ex.listeners) {
		return
	}
	ex.listeners[i](ex, &NextListener{ex: ex, index: i})
}
