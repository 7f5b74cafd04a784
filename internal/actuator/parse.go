package actuator

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ParseReading interprets a getPumpState body. The device has answered with
// plain numeric text ("0.50"), a bare JSON number, {"value": n}, {"state": n}
// and {"is_on": bool} over time; anything else, including a level outside
// 0.0 to 1.0, is an unknown reading.
func ParseReading(body []byte) Reading {
	text := string(bytes.TrimSpace(body))
	if len(text) == 0 {
		return Reading{}
	}

	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return levelReading(v)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return Reading{}
	}

	for _, key := range []string{"value", "state", "pump"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if v, ok := parseNumber(raw); ok {
			return levelReading(v)
		}
	}

	if raw, ok := obj["is_on"]; ok {
		var on bool
		if err := json.Unmarshal(raw, &on); err == nil {
			if on {
				return Reading{Known: true, Level: 1}
			}
			return Reading{Known: true, Level: 0}
		}
	}

	return Reading{}
}

func levelReading(v float64) Reading {
	if !validLevel(v) {
		return Reading{}
	}

	return Reading{Known: true, Level: v}
}

func parseNumber(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, true
		}
	}

	return 0, false
}
