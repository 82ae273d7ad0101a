package types

// Version is the canonical project version.
// The CLI, the artifact naming scheme, and the published event payloads all
// share this version (lockstep versioning).
const Version = "0.3.0"
