// Package device is the BLE client layer: scanning, connection lifecycle,
// GATT discovery, and characteristic I/O behind transport-neutral interfaces.
//
// The interfaces here are implemented by the go-ble backend (subpackage
// goble) for real hardware and by the mock peripheral in testutils for
// tests. Higher layers (discovery, session) depend only on this package,
// so a controller session runs unchanged against either backend.
//
// Notification delivery supports three stream modes: every update, batched
// per rate window, and latest-value aggregation. Notification buffers are
// pooled to keep the per-report allocation cost flat at controller rates.
package device
