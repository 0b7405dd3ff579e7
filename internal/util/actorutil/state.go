package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorWithStates wraps a behavior and remembers the name of the state it is
// in, for health reports and logs.
type ActorWithStates struct {
	Behavior  actor.Behavior
	stateName string
	stacked   []string
}

type ActorState interface {
	Name() string
	Receive(actor.Context)
}

func (s *ActorWithStates) Become(state ActorState) {
	s.stateName = state.Name()
	s.stacked = nil
	s.Behavior.Become(state.Receive)
}

func (s *ActorWithStates) BecomeStacked(state ActorState) {
	s.stacked = append(s.stacked, s.stateName)
	s.stateName = state.Name()
	s.Behavior.BecomeStacked(state.Receive)
}

func (s *ActorWithStates) UnbecomeStacked() {
	if n := len(s.stacked); n > 0 {
		s.stateName = s.stacked[n-1]
		s.stacked = s.stacked[:n-1]
	}
	s.Behavior.UnbecomeStacked()
}

func (s *ActorWithStates) StateName() string {
	return s.stateName
}

// NamedState adapts a receive function to ActorState.
type NamedState struct {
	StateName string
	Fn        actor.ReceiveFunc
}

func (n NamedState) Name() string {
	return n.StateName
}

func (n NamedState) Receive(ctx actor.Context) {
	n.Fn(ctx)
}
