// Package featureflags evaluates FEATURE_FLAGS rollout settings.
package featureflags

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// TypingIndicator gates relaying of typing frames, per sending connection.
const TypingIndicator = "typing_indicator"

// Manager holds flags parsed from a comma-separated list such as
// "typing_indicator=25%". Values are on/true/1, off/false/0 or a percentage.
// Each flag is stored as the percentage of subjects it is enabled for.
type Manager struct {
	rollout map[string]int
}

// NewManager parses raw. Malformed entries are skipped.
func NewManager(raw string) *Manager {
	rollout := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = normalize(key)
		pct, ok := parsePercent(normalize(value))
		if key == "" || !ok {
			continue
		}
		rollout[key] = pct
	}
	return &Manager{rollout: rollout}
}

func parsePercent(value string) (int, bool) {
	switch value {
	case "on", "true", "1":
		return 100, true
	case "off", "false", "0":
		return 0, true
	}
	if !strings.HasSuffix(value, "%") {
		return 0, false
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
	if err != nil {
		return 0, false
	}
	return min(max(pct, 0), 100), true
}

// Enabled reports whether flag name is on for userID. Partial rollouts never
// include the anonymous user 0; use EnabledFor with a connection id instead.
func (m *Manager) Enabled(name string, userID uint) bool {
	if userID == 0 {
		return m.EnabledFor(name, "")
	}
	return m.EnabledFor(name, "user:"+strconv.FormatUint(uint64(userID), 10))
}

// EnabledFor reports whether flag name is on for subject. Rollout buckets are
// deterministic per (flag, subject). An empty subject only sees fully enabled
// flags. A nil Manager has every flag off.
func (m *Manager) EnabledFor(name, subject string) bool {
	if m == nil {
		return false
	}
	pct, ok := m.rollout[normalize(name)]
	switch {
	case !ok || pct == 0:
		return false
	case pct == 100:
		return true
	case subject == "":
		return false
	}
	return bucket(name, subject) < pct
}

// String renders the parsed flags in key order, e.g. "typing_indicator=100%".
func (m *Manager) String() string {
	if m == nil || len(m.rollout) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m.rollout))
	for k := range m.rollout {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.Itoa(m.rollout[k]) + "%"
	}
	return strings.Join(parts, ",")
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name, subject string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + subject))
	return int(h.Sum32() % 100)
}
