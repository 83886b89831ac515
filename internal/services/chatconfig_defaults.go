package services

type defaultConfigKey struct {
	ItemType    string
	ItemSubtype string
}

// Built-in defaults, keyed by (item type, item subtype). These are the
// last tier of the resolution chain and must stay self-contained: no
// I/O, no env reads.
var defaultConfigs = map[defaultConfigKey]ResolvedChatConfig{
	{ItemType: "persona"}: {
		Provider:    "",
		Model:       "",
		Temperature: 0.8,
		MaxTokens:   1024,
		SystemPrompt: "You are {{persona_name}}, a synthetic consumer persona.\n" +
			"Stay in character at all times and answer in the first person.\n\n" +
			"{{persona_profile}}\n{{context}}\n{{knowledge}}",
		GreetingPrompt: "Write a short, warm greeting introducing yourself as {{persona_name}} and inviting questions.",
		Dimensions: []string{
			"values",
			"motivations",
			"pain_points",
			"buying_triggers",
			"media_habits",
		},
		ContextSourceTypes: []string{"brand", "campaign", "product", "strategy"},
	},
	{ItemType: "persona", ItemSubtype: "interview"}: {
		Provider:    "",
		Model:       "",
		Temperature: 0.6,
		MaxTokens:   1024,
		SystemPrompt: "You are {{persona_name}}, a synthetic consumer persona taking part in a structured interview.\n" +
			"Answer concisely, in the first person, and never break character.\n\n" +
			"{{persona_profile}}\n{{context}}\n{{knowledge}}",
		GreetingPrompt: "Write a one-sentence greeting as {{persona_name}}, ready to be interviewed.",
		Dimensions: []string{
			"daily_routine",
			"decision_process",
			"objections",
			"alternatives_considered",
		},
		ContextSourceTypes: []string{"brand", "product"},
	},
	{ItemType: "campaign"}: {
		Provider:    "",
		Model:       "",
		Temperature: 0.7,
		MaxTokens:   1024,
		SystemPrompt: "You are {{persona_name}}, a consumer persona reacting to campaign ideas.\n" +
			"Give candid first-person reactions.\n\n{{persona_profile}}\n{{context}}\n{{knowledge}}",
		GreetingPrompt: "Write a short greeting as {{persona_name}}, ready to react to campaign ideas.",
		Dimensions: []string{
			"first_impression",
			"emotional_response",
			"credibility",
			"call_to_action",
		},
		ContextSourceTypes: []string{"brand", "campaign", "product"},
	},
}

// genericDefaultConfig backs any (type, subtype) pair without its own
// entry.
var genericDefaultConfig = ResolvedChatConfig{
	Temperature: 0.7,
	MaxTokens:   1024,
	SystemPrompt: "You are {{persona_name}}, a synthetic persona.\n" +
		"Answer in the first person and stay in character.\n\n" +
		"{{persona_profile}}\n{{context}}\n{{knowledge}}",
	GreetingPrompt:     "Write a short greeting as {{persona_name}}.",
	Dimensions:         []string{"values", "motivations", "pain_points"},
	ContextSourceTypes: []string{"brand", "campaign", "product", "strategy"},
}

func defaultChatConfig(itemType string, itemSubtype *string) ResolvedChatConfig {
	if itemSubtype != nil {
		if cfg, ok := defaultConfigs[defaultConfigKey{ItemType: itemType, ItemSubtype: *itemSubtype}]; ok {
			return cfg
		}
	}
	if cfg, ok := defaultConfigs[defaultConfigKey{ItemType: itemType}]; ok {
		return cfg
	}
	return genericDefaultConfig
}
