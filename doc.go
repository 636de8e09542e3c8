// Package gatekeeper is the session authentication and role-based
// authorization core of the training back office.
//
// # Components
//
//   - [credential.Verifier]: identifier/secret check against argon2id hashes.
//   - [session.Store]: session lifecycle with per-user cap, lazy expiry and sweeping.
//   - [csrf]: static per-session anti-forgery token.
//   - [permission.Authorizer]: default-deny (role, resource, action) matrix.
//   - [Engine.Authorize]: the request gate composing all of the above.
//
// Every gate decision, allowed or denied, produces one audit event. Audit
// delivery is asynchronous and never blocks or fails a decision.
//
// # Client-visible errors
//
// [GateError.Error] returns only the opaque outcome ("unauthenticated",
// "forbidden", "internal error"). The precise reason (expired vs not found,
// missing permission) is available to the audit sink and to server-side
// logs, never to the client.
//
// # Quick start
//
//	engine, err := gatekeeper.New().
//		WithConfig(gatekeeper.DefaultConfig()).
//		WithRedis(rdb).
//		WithUserDirectory(users).
//		Build()
//	...
//	res, err := engine.Login(ctx, gatekeeper.LoginRequest{Identifier: email, Secret: pw})
//	sc, err := engine.Authorize(ctx, gatekeeper.GateRequest{Token: res.Token, Resource: "material", Action: "read"})
package gatekeeper
