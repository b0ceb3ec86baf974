package domain

import (
	"fmt"
	"strings"
)

// Gate is a configured sensor endpoint and the name its samples are stored under.
type Gate struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// GateName derives a stable gate name from the endpoint URL, falling back to its
// 1-based position in the configured list.
func GateName(url string, position int) string {
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, "south"):
		return "FM South gate"
	case strings.Contains(u, "west"):
		return "FM West gate"
	default:
		return fmt.Sprintf("Gate %d", position+1)
	}
}

// GatesFromURLs trims the list, drops blank entries and names each remaining URL.
func GatesFromURLs(urls []string) []Gate {
	gates := make([]Gate, 0, len(urls))
	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		gates = append(gates, Gate{URL: u, Name: GateName(u, len(gates))})
	}
	return gates
}
