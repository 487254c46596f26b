// Package authcore is the identity and access-control core for a
// multi-role retail operations backend. It owns credential hashing,
// signed access and refresh tokens, server-side sessions, the
// staff/cashier/manager/admin role hierarchy, and fixed-window request
// throttling; user and session records live in the caller's relational
// datastore behind the UserStore and session.Store interfaces.
//
// The package is transport-agnostic. Callers wire an Engine with the
// Builder and put Engine.Guard in front of protected operations:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithUserStore(users).
//		WithSessionStore(sessions).
//		Build()
//
// Every call the engine makes to its backing stores runs through a
// bounded retry policy and a circuit breaker; failures that survive
// both are reported as ErrDependencyUnavailable. Throttling fails open
// when the counter store is down.
package authcore
