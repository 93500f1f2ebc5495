package spec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v2"
)

type (
	// RuleSet is the declarative form of a server's expectations, decodable
	// from YAML or JSON
	RuleSet struct {
		Rules []Rule `json:"rules" yaml:"rules"`
	}

	// Rule pairs the request criteria to expect with the response to serve
	Rule struct {
		Method   string              `json:"method" yaml:"method"`
		Path     string              `json:"path" yaml:"path"`
		Headers  map[string]string   `json:"headers" yaml:"headers"`
		Text     string              `json:"text" yaml:"text"`
		JSON     interface{}         `json:"json" yaml:"json"`
		Form     map[string][]string `json:"form" yaml:"form"`
		Always   bool                `json:"always" yaml:"always"`
		Response Response            `json:"response" yaml:"response"`
	}

	// Response is the template served when its rule matches
	Response struct {
		Status  int               `json:"status" yaml:"status"`
		Headers map[string]string `json:"headers" yaml:"headers"`
		Body    string            `json:"body" yaml:"body"`
		JSON    interface{}       `json:"json" yaml:"json"`
	}
)

// Load decodes a rule set from r
func Load(r io.Reader) (RuleSet, error) {
	set := RuleSet{}
	if err := yaml.NewDecoder(r).Decode(&set); err != nil {
		return RuleSet{}, fmt.Errorf("failed to decode rule set %w", err)
	}

	for i := range set.Rules {
		set.Rules[i].JSON = mapKeysToString(set.Rules[i].JSON)
		set.Rules[i].Response.JSON = mapKeysToString(set.Rules[i].Response.JSON)
	}

	return set, nil
}

// mapKeysToString rewrites the map[interface{}]interface{} values the yaml
// decoder produces into map[string]interface{} so they can be re-encoded as
// JSON further down
func mapKeysToString(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[interface{}]interface{}:
		m := map[string]interface{}{}
		for key, value := range typed {
			m[fmt.Sprintf("%v", key)] = mapKeysToString(value)
		}
		return m
	case []interface{}:
		for i, value := range typed {
			typed[i] = mapKeysToString(value)
		}
	}

	return v
}
