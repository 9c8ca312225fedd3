package types

// Version is the canonical project version.
// The CLI and the compile-completed notification payload share this
// version per the lockstep versioning policy.
const Version = "0.4.0"
