//go:build !windows

package autostart

func enableWindows(execPath string, args []string) error {
	return ErrUnsupported
}

func disableWindows() error {
	return ErrUnsupported
}

func isEnabledWindows() bool {
	return false
}
