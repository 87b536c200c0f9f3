// Package credential resolves the Level 3 subscription token, the one
// authentication concern this system has (§6: "Credentials (L3 only)").
package credential

import (
	"fmt"
	"os"
	"strings"
)

// ResolveToken implements the priority order from §6: (1) an explicit
// token, (2) a token-file's trimmed contents, (3) the KRAKEN_WS_TOKEN
// environment variable. Absence of all three is a fatal configuration/
// credential error per §7.
func ResolveToken(explicit, tokenFile string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if tokenFile != "" {
		b, err := os.ReadFile(tokenFile)
		if err != nil {
			return "", fmt.Errorf("reading token file %q: %w", tokenFile, err)
		}
		token := strings.TrimSpace(string(b))
		if token == "" {
			return "", fmt.Errorf("token file %q is empty", tokenFile)
		}
		return token, nil
	}
	if token := os.Getenv("KRAKEN_WS_TOKEN"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("no level3 token: pass --token, --token-file, or set KRAKEN_WS_TOKEN")
}
