// Package osutils holds OS integration needed to accept remote commands.
package osutils

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// FirewallRuleName is the inbound rule created for the command port
const FirewallRuleName = "eyescroll remote scroll"

// PortFromAddr extracts the TCP port of a listen address such as ":8080"
// or "0.0.0.0:8080".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q in %q", p, addr)
	}
	return port, nil
}

// ruleState is what netsh reports about the command port rule
type ruleState int

const (
	ruleMissing ruleState = iota
	ruleMismatch
	ruleOK
)

// checkRule classifies the output of "netsh advfirewall firewall show rule".
// netsh exits non-zero when no rule has the name.
func checkRule(output string, showErr error, port int) ruleState {
	if showErr != nil || !strings.Contains(output, FirewallRuleName) {
		return ruleMissing
	}
	if ruleAllowsPort(output, port) {
		return ruleOK
	}
	return ruleMismatch
}

// powershellArgs runs script in a non-interactive hidden PowerShell
func powershellArgs(script string) []string {
	return []string{"-NoProfile", "-NonInteractive", "-WindowStyle", "Hidden", "-Command", script}
}

// ruleAllowsPort reports whether netsh rule output allows port
func ruleAllowsPort(output string, port int) bool {
	var localPort, allow bool
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "LocalPort":
			localPort = value == strconv.Itoa(port)
		case "Action":
			allow = value == "Allow"
		}
	}
	return localPort && allow
}

// firewallScript replaces the rule with an inbound TCP allow rule. The rule
// is port based, not program based, so rebuilt binaries keep working.
func firewallScript(port int) string {
	return fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; New-NetFirewallRule -DisplayName '%s' -Direction Inbound -LocalPort %d -Protocol TCP -Action Allow -Profile Any",
		FirewallRuleName, FirewallRuleName, port,
	)
}
