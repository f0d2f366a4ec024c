/*
 * Copyright (c) 2024. Frits1980 -- All Rights Reserved
 *
 * This file is part of HEATING-PID project.
 *
 * HEATING-PID is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as the Free Software Foundation,
 * either version 3 of the License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package internal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const mqttQoS = 1

func extractF64PlainOrJson(topic string, payload []byte, JSONEntry *string) (float64, error) {
	if JSONEntry == nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
		return v, errors.Wrapf(err, "parse %v", topic)
	}

	v, err := jsonEntry(topic, payload, *JSONEntry)
	if err != nil {
		return 0, err
	}

	switch t0 := v.(type) {
	case float64:
		return t0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t0), 64)
		return f, errors.Wrapf(err, "parse `%v` in %v", *JSONEntry, topic)
	}
	return 0, fmt.Errorf("cannot cast `%v` to float64 in : %v : %v", v, topic, string(payload))
}

// extractStringPlainOrJson returns the payload, or one entry of a JSON payload,
// as text. Booleans and numbers are formatted the usual way.
func extractStringPlainOrJson(topic string, payload []byte, JSONEntry *string) (string, error) {
	if JSONEntry == nil {
		return strings.TrimSpace(string(payload)), nil
	}

	v, err := jsonEntry(topic, payload, *JSONEntry)
	if err != nil {
		return "", err
	}
	switch t0 := v.(type) {
	case string:
		return t0, nil
	case bool:
		return strconv.FormatBool(t0), nil
	case float64:
		return strconv.FormatFloat(t0, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("cannot use `%v` as state in : %v : %v", v, topic, string(payload))
}

func jsonEntry(topic string, payload []byte, entry string) (interface{}, error) {
	var valMap map[string]interface{}
	if err := json.Unmarshal(payload, &valMap); err != nil {
		return nil, errors.Wrapf(err, "json unmarshal error with : %v : %v", topic, string(payload))
	}

	v, ok := valMap[entry]
	if !ok {
		return nil, fmt.Errorf("not found: `%v` in `%v`: %v", entry, topic, string(payload))
	}
	return v, nil
}

// lastSegment is the part of an MQTT topic after the final '/'.
func lastSegment(topic string) string {
	return topic[strings.LastIndex(topic, "/")+1:]
}

func parseSwitch(val string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "on", "1":
		return true, true
	case "false", "off", "0":
		return false, true
	}
	return false, false
}
