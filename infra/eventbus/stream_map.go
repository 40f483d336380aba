package eventbus

import (
	"fmt"
	"strings"
)

// groupNameFor returns the consumer group that delivers one event type.
// Each type gets its own group so every handler type sees every message.
func groupNameFor(group, eventType string) string {
	return nameFor(group, eventType)
}

func consumerNameFor(eventType string, n int64) string {
	return fmt.Sprintf("%s-%d", nameFor("consumer", eventType), n)
}

func dlqStreamName(stream string) string {
	return stream + ":dlq"
}

func nameFor(prefix, eventType string) string {
	return fmt.Sprintf("%s:%s", prefix, strings.ToLower(eventType))
}
