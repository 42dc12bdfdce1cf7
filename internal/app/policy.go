package app

import "github.com/dkeye/CodeRoom/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DisconnectMember
)

// Policy decides what happens to a member a broadcast could not reach.
type Policy interface {
	OnDeliveryFailure(member core.MemberSession, err error) BackpressureAction
}

// SimplePolicy treats every failed delivery as a dead connection.
type SimplePolicy struct{}

func (SimplePolicy) OnDeliveryFailure(member core.MemberSession, err error) BackpressureAction {
	return DisconnectMember
}
