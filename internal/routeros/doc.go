// Package routeros implements the NAS transmitter contract against the
// RouterOS API: the length-prefixed sentence codec, the session with its
// MD5 challenge login, the queue/address-list command layer, and the
// reconciliation engine on top of them.
package routeros
