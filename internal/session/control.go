package session

import (
	"github.com/teleprompter/backend/internal/model"
	"github.com/teleprompter/backend/internal/observability"
)

// ControlResult describes what a control message caused.
type ControlResult struct {
	// Handoff is true when the driver role moved to the session named by "main".
	Handoff bool
	// Broadcast is true when the message was relayed to the whole group.
	Broadcast bool
	// Evicted lists sessions removed by the sweep that follows every message.
	Evicted []string
}

// Control applies one control message from a session of identity.
//
// A message naming "main" hands the driver role to that session and announces
// it to the group. A message from the driver carrying anything besides its
// client ID is relayed verbatim to every session. Anything else is a
// heartbeat. Every message refreshes the sender's heartbeat and is followed by
// a sweep of the group.
func (r *Registry) Control(identity string, body []byte) (ControlResult, error) {
	req, err := model.ParseControlRequest(body)
	if err != nil {
		observability.ControlMessages.WithLabelValues("invalid").Inc()
		return ControlResult{}, err
	}
	return r.Apply(identity, req)
}

// Apply is Control for an already decoded request.
func (r *Registry) Apply(identity string, req *model.ControlRequest) (ControlResult, error) {
	var result ControlResult

	g, ok := r.lookup(identity)
	if !ok {
		observability.ControlMessages.WithLabelValues("not_found").Inc()
		return result, model.ErrSessionNotFound
	}

	g.mu.Lock()
	sender, ok := g.find(req.ClientID)
	if !ok {
		g.mu.Unlock()
		observability.ControlMessages.WithLabelValues("not_found").Inc()
		return result, model.ErrSessionNotFound
	}

	var (
		out  []delivery
		kind string
	)
	switch {
	case req.IsHandoff():
		if driver, moved := g.handoff(req.Main); moved {
			result.Handoff = true
			out = roleBroadcastLocked(g, driver)
			kind = "role"
		}
	case sender.isDriver && req.CarriesUpdate():
		result.Broadcast = true
		out = make([]delivery, 0, len(g.sessions))
		for _, s := range g.sessions {
			out = append(out, delivery{session: s, data: req.Raw})
		}
		kind = "position"
	}
	r.touchLocked(sender)
	g.mu.Unlock()

	switch {
	case result.Handoff:
		observability.ControlMessages.WithLabelValues("handoff").Inc()
		observability.RoleChanges.WithLabelValues("handoff").Inc()
		r.logger.Info().
			Str("identity", identity).
			Str("client_id", req.ClientID).
			Str("driver", req.Main).
			Msg("driver role handed off")
	case result.Broadcast:
		observability.ControlMessages.WithLabelValues("broadcast").Inc()
	default:
		observability.ControlMessages.WithLabelValues("heartbeat").Inc()
		r.logger.Debug().Str("identity", identity).Str("client_id", req.ClientID).Msg("heartbeat")
	}
	r.dispatch(out, kind)

	result.Evicted = r.Sweep(identity)
	return result, nil
}
