// Package joycon implements the Joy-Con 2 wire protocol: the GATT
// identifiers and activation command sequence, advertisement side
// classification, the fixed-layout input report decoder, button-mask
// decoding, and pointer motion tracking.
//
// The package is transport agnostic. It consumes and produces plain byte
// slices; BLE scanning and connection management live in the discovery and
// session packages.
package joycon
