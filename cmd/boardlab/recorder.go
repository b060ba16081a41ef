package main

import (
	"github.com/google/uuid"

	"boardlab/pkg/eventlog"
	"boardlab/pkg/logx"
	"boardlab/pkg/persistence"
)

// recorder fans session events out to the event log and the run-history
// store. Both are optional observability; their errors are logged and
// never interrupt the session.
type recorder struct {
	ev        *eventlog.Writer
	store     *persistence.Store
	sessionID string
	logger    *logx.Logger
}

func newRecorder(ev *eventlog.Writer, store *persistence.Store) *recorder {
	id := uuid.NewString()
	if ev != nil {
		id = ev.SessionID()
	}
	return &recorder{
		ev:        ev,
		store:     store,
		sessionID: id,
		logger:    logx.NewLogger("recorder"),
	}
}

func (r *recorder) sessionStarted(boardName string) {
	if r.ev != nil {
		if err := r.ev.Power("on"); err != nil {
			r.logger.Warnf("event log: %v", err)
		}
	}
	if r.store != nil {
		if err := r.store.SessionStarted(r.sessionID, boardName); err != nil {
			r.logger.Warnf("run history: %v", err)
		}
	}
}

func (r *recorder) sessionEnded(runErr error) {
	result := "ok"
	if runErr != nil {
		result = runErr.Error()
	}
	if r.ev != nil {
		if err := r.ev.Power("off"); err != nil {
			r.logger.Warnf("event log: %v", err)
		}
	}
	if r.store != nil {
		if err := r.store.SessionEnded(r.sessionID, result); err != nil {
			r.logger.Warnf("run history: %v", err)
		}
	}
}

func (r *recorder) boot(machine, bootlog string) {
	if r.ev != nil {
		if err := r.ev.Boot(machine, bootlog); err != nil {
			r.logger.Warnf("event log: %v", err)
		}
	}
}

func (r *recorder) command(machine, command string, code int, output string, execErr error) {
	if execErr != nil {
		return // nothing reliable to record
	}
	if r.ev != nil {
		if err := r.ev.Command(machine, command, code, output); err != nil {
			r.logger.Warnf("event log: %v", err)
		}
	}
	if r.store != nil {
		if err := r.store.CommandRan(r.sessionID, machine, command, code, output); err != nil {
			r.logger.Warnf("run history: %v", err)
		}
	}
}

func (r *recorder) interactive(machine, phase string) {
	if r.ev != nil {
		if err := r.ev.Interactive(machine, phase); err != nil {
			r.logger.Warnf("event log: %v", err)
		}
	}
}
