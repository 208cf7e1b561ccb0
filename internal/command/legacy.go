package command

import (
	"strconv"
	"strings"
)

// Keys older producers use for the command name, in lookup order.
var legacyKindKeys = []string{"kind", "command", "cmd", "type", "action"}

// Keys that carry parameters as a nested object.
var legacyParamKeys = []string{"params", "args", "arguments", "payload", "data"}

var legacyMetaKeys = map[string][]string{
	"id":        {"id", "messageId", "msgId"},
	"device":    {"device", "deviceId", "device_id"},
	"timestamp": {"timestamp", "ts", "time"},
}

// fromLegacy maps a generically parsed payload onto a Command. It accepts a
// bare command name, a flat object naming the command under one of the legacy
// keys, or an envelope whose "command" field is itself such an object.
func fromLegacy(v interface{}) (Command, Metadata, bool) {
	switch val := v.(type) {
	case string:
		kind := strings.TrimSpace(val)
		if kind == "" {
			return Command{}, Metadata{}, false
		}
		return Command{Kind: kind}, Metadata{}, true

	case map[string]interface{}:
		meta := legacyMetadata(val)

		if nested, ok := val["command"].(map[string]interface{}); ok {
			cmd, nestedMeta, ok := fromLegacy(nested)
			if !ok {
				return Command{}, Metadata{}, false
			}
			return cmd, mergeMetadata(meta, nestedMeta), true
		}

		kind, kindKey := legacyKind(val)
		if kind == "" {
			return Command{}, Metadata{}, false
		}

		cmd := Command{Kind: kind}
		if target, ok := val["target"].(string); ok {
			cmd.Target = target
		}
		cmd.Params = legacyParams(val, kindKey)
		return cmd, meta, true
	}

	return Command{}, Metadata{}, false
}

func legacyKind(obj map[string]interface{}) (string, string) {
	for _, key := range legacyKindKeys {
		if s, ok := obj[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s, key
			}
		}
	}
	return "", ""
}

// legacyParams returns the nested parameter object if present. Otherwise every
// field that is neither the kind, the target nor metadata becomes a parameter.
func legacyParams(obj map[string]interface{}, kindKey string) map[string]interface{} {
	for _, key := range legacyParamKeys {
		if p, ok := obj[key].(map[string]interface{}); ok {
			return p
		}
	}

	skip := map[string]bool{kindKey: true, "target": true}
	for _, keys := range legacyMetaKeys {
		for _, k := range keys {
			skip[k] = true
		}
	}

	var params map[string]interface{}
	for k, v := range obj {
		if skip[k] {
			continue
		}
		if params == nil {
			params = make(map[string]interface{})
		}
		params[k] = v
	}
	return params
}

func legacyMetadata(obj map[string]interface{}) Metadata {
	return Metadata{
		ID:        firstScalar(obj, legacyMetaKeys["id"]),
		Device:    firstScalar(obj, legacyMetaKeys["device"]),
		Timestamp: firstScalar(obj, legacyMetaKeys["timestamp"]),
	}
}

func firstScalar(obj map[string]interface{}, keys []string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func mergeMetadata(outer, inner Metadata) Metadata {
	if outer.ID == "" {
		outer.ID = inner.ID
	}
	if outer.Device == "" {
		outer.Device = inner.Device
	}
	if outer.Timestamp == "" {
		outer.Timestamp = inner.Timestamp
	}
	return outer
}
