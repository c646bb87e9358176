// Package api hosts the HTTP handlers behind the videobox REST API.
//
// Handler coordinates request decoding, identity resolution and response
// shaping while delegating persistence to a storage.Repository and the
// credential lifecycle to an auth.SessionManager, both injected at
// construction time. Every response uses the same JSON envelope, and errors
// from the lower layers are classified into status codes in one place.
//
// Router mounts the routes under a chi router; internal/server adds the
// request-id, logging, metrics, security-header and CORS middleware in front.
package api
