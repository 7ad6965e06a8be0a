package main

// MiddlewareMap contains middlwares chain to
// use for public-facing and ops requests.
type MiddlewareMap struct {
	public MiddlewareFunc
	ops    MiddlewareFunc
}

// LivePrefix is the path prefix of the streaming live views.
const LivePrefix = "/live/"
