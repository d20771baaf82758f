package notify

import "strings"

const (
	// municipalityPrefix namespaces provider topics derived from
	// municipality names
	municipalityPrefix = "municipality_"

	// TopicAllUsers is the reserved broadcast topic used when no
	// municipality is given
	TopicAllUsers = "all_users"
)

// MunicipalityTopic derives a provider topic from a municipality name:
// lowercased, runs of whitespace collapsed to a single underscore.
// "Daet" -> "municipality_daet", "San  Jose" -> "municipality_san_jose".
func MunicipalityTopic(municipality string) string {
	parts := strings.Fields(strings.ToLower(municipality))
	return municipalityPrefix + strings.Join(parts, "_")
}

// BroadcastTopic resolves the topic for an alert: a municipality topic when
// one is given, the all-users sentinel otherwise
func BroadcastTopic(municipality string) string {
	if strings.TrimSpace(municipality) == "" {
		return TopicAllUsers
	}
	return MunicipalityTopic(municipality)
}
