package mqtt

import "fmt"

// Topic prefixes. Every topic published by Gift Planner Core lives under
// giftplanner/.
const (
	// TopicPrefixCore is the base for all core topics.
	TopicPrefixCore = "giftplanner/core"

	// TopicPrefixDatabase is the base for engine and statement cache topics.
	TopicPrefixDatabase = "giftplanner/core/database"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "giftplanner/system"
)

// Topics provides builders for Gift Planner MQTT topics.
//
//	topics := mqtt.Topics{}
//	statsTopic := topics.DatabaseStats()
//	// Returns: "giftplanner/core/database/stats"
type Topics struct{}

// DatabaseStats returns the retained statement cache statistics topic.
//
// Example: giftplanner/core/database/stats
func (Topics) DatabaseStats() string {
	return fmt.Sprintf("%s/stats", TopicPrefixDatabase)
}

// DatabaseHealth returns the retained engine health topic.
//
// Example: giftplanner/core/database/health
func (Topics) DatabaseHealth() string {
	return fmt.Sprintf("%s/health", TopicPrefixDatabase)
}

// DatabaseStatsRequest returns the topic on which other services ask for an
// immediate statistics report.
//
// Example: giftplanner/core/database/stats/request
func (Topics) DatabaseStatsRequest() string {
	return fmt.Sprintf("%s/stats/request", TopicPrefixDatabase)
}

// CoreEvent returns the topic for core lifecycle events.
//
// Example: giftplanner/core/event/migrated
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// SystemStatus returns the system status topic carrying online/offline and LWT messages.
//
// Example: giftplanner/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDatabase returns a pattern matching every database topic.
//
// Pattern: giftplanner/core/database/#
func (Topics) AllDatabase() string {
	return fmt.Sprintf("%s/#", TopicPrefixDatabase)
}

// AllCoreEvents returns a pattern matching all core events.
//
// Pattern: giftplanner/core/event/+
func (Topics) AllCoreEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixCore)
}

// AllTopics returns a pattern matching all Gift Planner topics.
//
// Pattern: giftplanner/#
func (Topics) AllTopics() string {
	return "giftplanner/#"
}
