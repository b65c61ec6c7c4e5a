package logic

import "time"

// SwitchDebouncer turns raw samples of the manual valve switch into commands.
// The first stable position only establishes a baseline; after that, each
// debounced change to ON yields CommandOpen and each change to OFF yields
// CommandClose.
type SwitchDebouncer struct {
	debounceDuration time.Duration
	sw               SwitchState
}

// NewSwitchDebouncer creates a debouncer with the given debounce duration.
func NewSwitchDebouncer(debounceDuration time.Duration) *SwitchDebouncer {
	return &SwitchDebouncer{debounceDuration: debounceDuration}
}

// Process takes a new sample and returns the command to issue, if any.
func (d *SwitchDebouncer) Process(input SwitchInput) (Command, bool) {
	sw := &d.sw

	if !sw.Baselined {
		if !sw.HasPending || sw.Pending != input.On {
			// Start observing, or restart after a change during baseline
			sw.Pending = input.On
			sw.HasPending = true
			sw.PendingSince = input.Time
			return "", false
		}
		if input.Time.Sub(sw.PendingSince) >= d.debounceDuration {
			sw.Stable = input.On
			sw.Baselined = true
			sw.HasPending = false
		}
		return "", false
	}

	if input.On == sw.Stable {
		// Back at the stable position, drop any pending bounce
		sw.HasPending = false
		return "", false
	}

	if !sw.HasPending || sw.Pending != input.On {
		sw.Pending = input.On
		sw.HasPending = true
		sw.PendingSince = input.Time
		return "", false
	}

	if input.Time.Sub(sw.PendingSince) < d.debounceDuration {
		return "", false
	}

	sw.Stable = input.On
	sw.HasPending = false
	if sw.Stable {
		return CommandOpen, true
	}
	return CommandClose, true
}

// IsBaselined returns whether the switch position has been established.
func (d *SwitchDebouncer) IsBaselined() bool {
	return d.sw.Baselined
}

// Position returns the current stable switch position.
func (d *SwitchDebouncer) Position() bool {
	return d.sw.Stable
}
