package core

import (
	"script_ink/script_bazaar/schema"
)

type Permission int

const (
	NoPermission    Permission = 0
	ReadPermission  Permission = 1
	OwnerPermission Permission = 2
)

func (p Permission) String() string {
	switch p {
	case NoPermission:
		return "None"
	case ReadPermission:
		return "Read"
	case OwnerPermission:
		return "Owner"
	default:
		return "invalid permission"
	}
}

// ScriptPermission resolves what actor may do with script. Admins can read
// every script but only authors own them.
func ScriptPermission(actor Actor, script schema.Script) Permission {
	if actor.Authenticated() && script.AuthorId == actor.Id {
		return OwnerPermission
	}
	if script.IsPublic || actor.IsAdmin {
		return ReadPermission
	}
	return NoPermission
}

func requirePermission(actor Actor, script schema.Script, required Permission) error {
	actual := ScriptPermission(actor, script)
	if actual >= required {
		return nil
	}
	if required == OwnerPermission {
		return Errorf(Forbidden, "only the author of script %v may do this", script.Id)
	}
	return Errorf(Forbidden, "script %v is private", script.Id)
}
