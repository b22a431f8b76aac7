// Package notification holds the device-agnostic model the pipeline delivers:
// Spec (one per surviving host event), its Actions, the closed
// NotificationType table and the call/music side-channel specs.
package notification
