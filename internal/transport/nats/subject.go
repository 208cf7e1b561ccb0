package nats

import (
	"strings"
)

// emptyToken stands in for an empty MQTT topic level, which NATS subjects
// cannot carry.
const emptyToken = "_"

var subjectReplacer = strings.NewReplacer(
	" ", "_",
	",", "_",
	":", "_",
	"?", "_",
	"[", "_",
	"]", "_",
)

// ToNATSSubject converts an MQTT topic or filter to NATS subject format.
// MQTT uses / as separators and +/# as wildcards
// NATS uses . as separators and */> as wildcards
func ToNATSSubject(mqttTopic string) string {
	levels := strings.Split(mqttTopic, "/")
	for i, level := range levels {
		switch level {
		case "":
			levels[i] = emptyToken
		case "+":
			levels[i] = "*"
		case "#":
			levels[i] = ">"
		default:
			levels[i] = subjectReplacer.Replace(level)
		}
	}
	return strings.Join(levels, ".")
}

// ToMQTTTopic converts a NATS subject back to MQTT topic format.
func ToMQTTTopic(natsSubject string) string {
	tokens := strings.Split(natsSubject, ".")
	for i, token := range tokens {
		switch token {
		case emptyToken:
			tokens[i] = ""
		case "*":
			tokens[i] = "+"
		case ">":
			tokens[i] = "#"
		}
	}
	return strings.Join(tokens, "/")
}
