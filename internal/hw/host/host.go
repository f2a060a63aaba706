// Package host controls the machine the rover runs on.
package host

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/cjeanneret/RoverGo/internal/debug"
)

// PowerOff flushes the filesystems and powers the machine off.
// It needs CAP_SYS_BOOT and does not return on success.
func PowerOff() error {
	debug.Info("Powering off")
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF); err != nil {
		return fmt.Errorf("power off: %w", err)
	}
	return nil
}

// Switch returns the power-off action for the configured mode: the real
// PowerOff when allowed, a logging no-op otherwise.
func Switch(allowPowerOff bool) func() error {
	if allowPowerOff {
		return PowerOff
	}
	return func() error {
		debug.Info("Power off not allowed by config (defaults.allow_power_off), skipping")
		return nil
	}
}
