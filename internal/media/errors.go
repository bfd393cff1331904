package media

import (
	"errors"
	"strings"
)

var (
	ErrPermissionDenied = errors.New("media permission denied")
	ErrDeviceNotFound   = errors.New("media device not found")
	ErrDeviceBusy       = errors.New("media device busy")
	ErrNotStarted       = errors.New("media not started")
)

// UserMessage maps an acquisition error to the string shown to the
// operator. Unknown errors get the generic message.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Camera/microphone access denied. Please grant permissions."
	case errors.Is(err, ErrDeviceNotFound):
		return "No camera or microphone found on this device."
	case errors.Is(err, ErrDeviceBusy):
		return "Camera/microphone is already in use by another application."
	default:
		return "Failed to access camera/microphone"
	}
}

// classify folds driver error text into the acquisition taxonomy. The
// capture drivers return plain errors, so this is substring matching.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied"):
		return ErrPermissionDenied
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no device") || strings.Contains(msg, "failed to find"):
		return ErrDeviceNotFound
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		return ErrDeviceBusy
	default:
		return err
	}
}
