// Package identity assigns stable identifiers to derived records.
//
// A record is split into a Key (tag plus declared key fields) and a
// Payload. Only the Key reaches Assign, so attributes attached as payload
// can neither change a record's identifier nor the support counted for it.
package identity
