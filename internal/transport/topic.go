package transport

import (
	"fmt"
	"strings"
)

// ValidateFilter validates a subscription topic filter. Empty levels are
// allowed anywhere; wildcards must occupy a whole level and # must be last.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidFilter)
	}

	segments := strings.Split(filter, "/")
	for i, segment := range segments {
		if strings.Contains(segment, "#") {
			if segment != "#" {
				return fmt.Errorf("%w: # wildcard must occupy entire segment", ErrInvalidFilter)
			}
			if i != len(segments)-1 {
				return fmt.Errorf("%w: # wildcard must be the last segment", ErrInvalidFilter)
			}
		}

		if strings.Contains(segment, "+") && segment != "+" {
			return fmt.Errorf("%w: + wildcard must occupy entire segment", ErrInvalidFilter)
		}
	}

	return nil
}

// ValidateTopicName validates a publish topic name.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in topic names", ErrInvalidTopic)
	}
	return nil
}
