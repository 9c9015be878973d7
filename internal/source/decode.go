package source

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// flexString decodes a JSON string or number. Upstream IDs come as either.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(data))
	return nil
}

// named decodes either a plain string or an object carrying a
// display_name or name field.
type named string

func (n *named) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*n = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = named(s)
		return nil
	}
	var obj struct {
		DisplayName string `json:"display_name"`
		Name        string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.DisplayName != "" {
		*n = named(obj.DisplayName)
	} else {
		*n = named(obj.Name)
	}
	return nil
}

func joinNames(items []named) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(string(it)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

var digitRuns = regexp.MustCompile(`\d+`)

// parseSalaryText pulls a min and max out of a free-form salary string
// such as "$120,000 - $150,000" or "$90k-$110k".
func parseSalaryText(s string) (lo, hi float64) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(strings.ReplaceAll(s, "k", "000"), "K", "000")
	nums := digitRuns.FindAllString(s, 2)
	if len(nums) > 0 {
		lo, _ = strconv.ParseFloat(nums[0], 64)
	}
	if len(nums) > 1 {
		hi, _ = strconv.ParseFloat(nums[1], 64)
	}
	return lo, hi
}
