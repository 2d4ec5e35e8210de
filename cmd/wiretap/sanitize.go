package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	ipPattern       = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	phonePattern    = regexp.MustCompile(`\b1?\d{10}\b`)
	secretPattern   = regexp.MustCompile(`(?i)(Secret:\s*).+`)
	passwordPattern = regexp.MustCompile(`(?i)(Password:\s*).+`)
)

func sanitizeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path+".bak", data, 0o644); err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}

	return os.WriteFile(path, []byte(sanitize(string(data))), 0o644)
}

// sanitize redacts credentials and non-loopback addresses everywhere, and
// phone numbers in caller id and connected line headers. Line endings are
// preserved.
func sanitize(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		body, cr := strings.CutSuffix(line, "\r")

		body = secretPattern.ReplaceAllString(body, "${1}REDACTED")
		body = passwordPattern.ReplaceAllString(body, "${1}REDACTED")

		body = ipPattern.ReplaceAllStringFunc(body, func(ip string) string {
			if ip == "127.0.0.1" {
				return ip
			}
			return "10.0.0.1"
		})

		if strings.HasPrefix(body, "CallerID") || strings.HasPrefix(body, "ConnectedLine") {
			body = phonePattern.ReplaceAllString(body, "15550001234")
		}

		if cr {
			body += "\r"
		}
		lines[i] = body
	}
	return strings.Join(lines, "\n")
}
