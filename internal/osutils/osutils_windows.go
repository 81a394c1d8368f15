//go:build windows

package osutils

import (
	"fmt"
	"log"
	"os/exec"

	"golang.org/x/sys/windows"
)

// IsAdmin reports whether the process token is elevated
func IsAdmin() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// EnsureFirewallRule makes sure inbound TCP on the command port is
// allowed. The rule is written by PowerShell, behind a UAC prompt when the
// process is not elevated.
func EnsureFirewallRule(port int) error {
	out, err := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+FirewallRuleName).CombinedOutput()

	switch checkRule(string(out), err, port) {
	case ruleOK:
		log.Printf("Firewall: Rule %q allows port %d", FirewallRuleName, port)
		return nil
	case ruleMismatch:
		log.Printf("Firewall: Rule %q does not allow port %d, replacing it", FirewallRuleName, port)
	default:
		log.Printf("Firewall: Rule %q missing, creating it for port %d", FirewallRuleName, port)
	}

	args := powershellArgs(firewallScript(port))
	if IsAdmin() {
		if out, err := exec.Command("powershell.exe", args...).CombinedOutput(); err != nil {
			return fmt.Errorf("create firewall rule: %w (output: %s)", err, out)
		}
		log.Printf("Firewall: Rule for port %d applied", port)
		return nil
	}

	if err := runElevated("powershell.exe", args); err != nil {
		return fmt.Errorf("create firewall rule: %w", err)
	}
	log.Println("Firewall: Waiting for the UAC prompt to be accepted")
	return nil
}

// runElevated starts exe hidden with the runas verb. It returns once the
// process is launched, not when it finishes.
func runElevated(exe string, args []string) error {
	verb, err := windows.UTF16PtrFromString("runas")
	if err != nil {
		return err
	}
	file, err := windows.UTF16PtrFromString(exe)
	if err != nil {
		return err
	}
	params, err := windows.UTF16PtrFromString(windows.ComposeCommandLine(args))
	if err != nil {
		return err
	}
	if err := windows.ShellExecute(0, verb, file, params, nil, windows.SW_HIDE); err != nil {
		return fmt.Errorf("ShellExecute runas %s: %w", exe, err)
	}
	return nil
}
