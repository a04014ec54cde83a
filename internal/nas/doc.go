// Package nas defines the value objects and the vendor-agnostic transmitter
// contract shared by every NAS implementation.
//
// Ownership boundary:
// - subscriber/tariff/address descriptors of desired device state
// - the Transmitter interface consumed by billing-side event handlers
// - the network / command-rejected error taxonomy
package nas
