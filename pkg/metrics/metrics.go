// Package metrics exposes Prometheus counters for console automation:
// how many commands ran, how often prompts timed out, how many power
// cycles a board has seen. Collection never affects automaton behavior.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts commands issued per machine.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardlab_commands_total",
		Help: "Console commands issued, by machine.",
	}, []string{"machine"})

	// CommandFailures counts commands that returned a non-zero code.
	CommandFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardlab_command_failures_total",
		Help: "Console commands that returned non-zero, by machine.",
	}, []string{"machine"})

	// PromptTimeouts counts prompt waits that expired.
	PromptTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardlab_prompt_timeouts_total",
		Help: "Prompt waits that timed out, by machine.",
	}, []string{"machine"})

	// PowerCycles counts completed power-on transitions per board.
	PowerCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardlab_power_cycles_total",
		Help: "Board power-on transitions, by board.",
	}, []string{"board"})
)

// Handler returns the HTTP handler serving the default registry, mounted
// by the CLI when --metrics-addr is set.
func Handler() http.Handler {
	return promhttp.Handler()
}
