//go:build linux

package main

const (
	exampleDeviceAddress = "AA:BB:CC:DD:EE:FF"
	deviceAddressNote    = "Device address format: 48-bit MAC, colon-separated\n  Example: AA:BB:CC:DD:EE:FF\n  Use 'joyc scan' to discover controllers"
)
