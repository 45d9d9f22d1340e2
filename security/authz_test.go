package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizationManagerDisabledAlwaysAllows(t *testing.T) {
	mgr := NewAuthorizationManager(false)
	mgr.SetPolicy(EntityTool, func(ctx *Context, action Action, target string) bool { return false })

	assert.True(t, mgr.Check(nil, EntityTool, ActionCall, "echo"))
}

func TestAuthorizationManagerDefaultAllowWithoutPolicy(t *testing.T) {
	mgr := NewAuthorizationManager(true)
	assert.True(t, mgr.Check(&Context{}, EntityResource, ActionRead, "note://welcome"))
}

func TestAuthorizationManagerEnforcesPolicy(t *testing.T) {
	mgr := NewAuthorizationManager(true)
	mgr.SetPolicy(EntityTool, func(ctx *Context, action Action, target string) bool {
		return target == "echo"
	})

	assert.True(t, mgr.Check(&Context{}, EntityTool, ActionCall, "echo"))
	assert.False(t, mgr.Check(&Context{}, EntityTool, ActionCall, "delete-everything"))
}

func TestAuthorizationManagerPanicIsTreatedAsDeny(t *testing.T) {
	mgr := NewAuthorizationManager(true)
	mgr.SetPolicy(EntityPrompt, func(ctx *Context, action Action, target string) bool {
		panic("policy exploded")
	})

	assert.False(t, mgr.Check(&Context{}, EntityPrompt, ActionCall, "greeting"))
}

func TestAuthorizationManagerSetPolicyReplacesExisting(t *testing.T) {
	mgr := NewAuthorizationManager(true)
	mgr.SetPolicy(EntityRoot, func(ctx *Context, action Action, target string) bool { return false })
	mgr.SetPolicy(EntityRoot, func(ctx *Context, action Action, target string) bool { return true })

	assert.True(t, mgr.Check(&Context{}, EntityRoot, ActionList, ""))
}
