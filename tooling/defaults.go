package tooling

// DefaultSpecs returns the Spec metadata for the five tool classes the
// specification's Center loop recognizes (§4.4). Callers register each
// with a domain-specific Handler; this function only fixes name,
// terminating-ness, description, and argument schema.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			Name:        OutputPlan,
			Terminating: true,
			Description: "Emit the final negotiated plan. plan_text is required; plan_json is an optional structured form.",
			ArgsSchema: []byte(`{
				"type": "object",
				"properties": {
					"plan_text": {"type": "string"},
					"plan_json": {"type": "object"}
				},
				"required": ["plan_text"]
			}`),
		},
		{
			Name:        AskAgent,
			Terminating: false,
			Description: "Request additional information from one participant agent.",
			ArgsSchema: []byte(`{
				"type": "object",
				"properties": {
					"agent_id": {"type": "string"},
					"question": {"type": "string"}
				},
				"required": ["agent_id", "question"]
			}`),
		},
		{
			Name:        StartDiscovery,
			Terminating: false,
			Description: "Spawn a bounded-depth sub-negotiation over a topic with a participant subset.",
			ArgsSchema: []byte(`{
				"type": "object",
				"properties": {
					"topic": {"type": "string"},
					"participant_ids": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["topic", "participant_ids"]
			}`),
		},
		{
			Name:        OutputGap,
			Terminating: false,
			Description: "Declare an unfilled requirement, typically followed by start_discovery.",
			ArgsSchema: []byte(`{
				"type": "object",
				"properties": {
					"description": {"type": "string"}
				},
				"required": ["description"]
			}`),
		},
		{
			Name:        Reject,
			Terminating: true,
			Description: "Declare that no viable plan exists; the session ends with a negative plan artifact.",
			ArgsSchema: []byte(`{
				"type": "object",
				"properties": {
					"reason": {"type": "string"}
				},
				"required": ["reason"]
			}`),
		},
	}
}
