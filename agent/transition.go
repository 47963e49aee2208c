package agent

import (
	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/engine"
)

// transition builds an engine transition from the observed session state.
func transition(sess *core.Session, from, to core.ProviderStatus, update core.SessionUpdate) engine.Transition {
	return engine.Transition{
		Key:    sess.Key(),
		From:   from,
		To:     to,
		Update: update,
	}
}
