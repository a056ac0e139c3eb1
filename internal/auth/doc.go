// Package auth handles operator login for the loading station.
//
// Operators sign in with a 4-digit PIN. PINs are stored as Argon2id PHC
// strings, so login verifies the PIN against every operator's hash. A
// successful login closes the operator's open shifts, opens a new session
// and issues a signed JWT that carries the session id. The session id is
// what scan counters are charged to.
package auth
