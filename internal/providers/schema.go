package providers

import "strings"

// CleanToolSchemas shapes ToolDefinitions into the OpenAI-compatible
// {"type":"function","function":{...}} wire form buildRequestBody sends as
// body["tools"], stripping JSON-Schema keywords a given provider's
// tool-calling endpoint rejects.
//
// Gemini's OpenAI-compat endpoint 400s on "additionalProperties" and on
// "format" values it doesn't recognize on string properties (e.g.
// "uuid") — both get dropped for providers whose name contains "gemini",
// mirroring the tool_call cleanup collapseToolCallsWithoutSig already does
// for that endpoint.
func CleanToolSchemas(providerName string, defs []ToolDefinition) []map[string]interface{} {
	geminiStrict := strings.Contains(strings.ToLower(providerName), "gemini")

	out := make([]map[string]interface{}, 0, len(defs))
	for _, d := range defs {
		params := d.Function.Parameters
		if geminiStrict {
			params = cleanParametersForGemini(params)
		}
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        d.Function.Name,
				"description": d.Function.Description,
				"parameters":  params,
			},
		})
	}
	return out
}

// CleanSchemaForProvider applies the same parameter-schema cleanup
// CleanToolSchemas does, for callers (Anthropic's native tool format) that
// build their own request shape and only need the cleaned "parameters"/
// "input_schema" value rather than the full function wrapper.
func CleanSchemaForProvider(providerName string, params map[string]interface{}) map[string]interface{} {
	if strings.Contains(strings.ToLower(providerName), "gemini") {
		return cleanParametersForGemini(params)
	}
	return params
}

func cleanParametersForGemini(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	cleaned := make(map[string]interface{}, len(params))
	for k, v := range params {
		if k == "additionalProperties" {
			continue
		}
		switch val := v.(type) {
		case map[string]interface{}:
			cleaned[k] = cleanPropertyForGemini(val)
		default:
			cleaned[k] = v
		}
	}
	return cleaned
}

func cleanPropertyForGemini(prop map[string]interface{}) map[string]interface{} {
	cleaned := make(map[string]interface{}, len(prop))
	for k, v := range prop {
		if k == "additionalProperties" {
			continue
		}
		if k == "format" {
			if s, ok := v.(string); ok && s != "date-time" && s != "enum" {
				continue
			}
		}
		switch val := v.(type) {
		case map[string]interface{}:
			cleaned[k] = cleanPropertyForGemini(val)
		default:
			cleaned[k] = v
		}
	}
	return cleaned
}
