package core

import "testing"

func TestAppContext_ServiceRegistry(t *testing.T) {
	ctx := NewAppContext(nil, "/data")

	if _, ok := ctx.Service("store.links"); ok {
		t.Fatal("Service should report false before registration")
	}

	type linkStore struct{ name string }
	ctx.RegisterService("store.links", &linkStore{name: "sqlite"})

	svc, ok := ctx.Service("store.links")
	if !ok {
		t.Fatal("Service should report true after registration")
	}
	if svc.(*linkStore).name != "sqlite" {
		t.Errorf("unexpected service value: %+v", svc)
	}
}

func TestAppContext_ServicesSharedAcrossScopes(t *testing.T) {
	ctx := NewAppContext(nil, "/data")
	child := ctx.ForModule("channel.telegram")

	child.RegisterService("gateway.metrics", 42)

	if _, ok := ctx.Service("gateway.metrics"); !ok {
		t.Error("service registered in a module scope should be visible from the root context")
	}

	sibling := ctx.ForModule("store.sqlite")
	if _, ok := sibling.Service("gateway.metrics"); !ok {
		t.Error("service should be visible from sibling module scopes")
	}
}
