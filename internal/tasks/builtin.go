package tasks

// Builtin returns the task definitions shipped with the binary. Handlers and
// tool sets are bound at startup.
func Builtin() []*TaskDefinition {
	return []*TaskDefinition{
		{
			ID:          "medicine",
			DisplayName: "Find Medicine",
			Description: "Locate medicines at nearby pharmacies, check availability, and reserve for pickup",
			Icon:        "pill",
			Color:       "emerald",
			Category:    "health",
			Enabled:     true,
			Keywords: []string{
				"medicine", "pharmacy", "drug", "medication", "prescription",
				"paracetamol", "ibuprofen", "aspirin", "antibiotic", "pill",
				"drugstore", "cvs", "walgreens", "rite aid",
			},
			ToolNames:    []string{"web_search", "remember_preference"},
			SystemPrompt: medicinePrompt,
			Metadata: map[string]any{
				"real_features": []string{"pharmacy_search"},
			},
		},
		{
			ID:          "travel",
			DisplayName: "Plan Travel",
			Description: "Create detailed travel itineraries with activities, restaurants, and logistics",
			Icon:        "plane",
			Color:       "blue",
			Category:    "lifestyle",
			Enabled:     true,
			Keywords: []string{
				"travel", "trip", "vacation", "holiday", "itinerary",
				"flight", "hotel", "destination", "bali", "tokyo", "paris",
				"adventure", "beach", "mountain", "city break",
			},
			ToolNames:    []string{"web_search", "remember_preference"},
			SystemPrompt: travelPrompt,
			Metadata: map[string]any{
				"real_features": []string{"destination_search", "activity_search"},
			},
		},
	}
}

const medicinePrompt = `You help people find a medicine at a pharmacy near them.

Before searching, make sure you know:
- the medicine (name, and dosage or form when it matters)
- where to search (city, neighborhood or address)
- how urgent it is (24-hour pharmacies?)
- the quantity needed

Ask for missing details one or two at a time. Confirm what you understood
before searching. Use web_search only once you have both the medicine and
a location. When the user states a lasting preference (preferred pharmacy
chain, insurance, usual location), store it with remember_preference.
Stay calm and empathetic: looking for medicine can be stressful.`

const travelPrompt = `You are a travel planner who builds day-by-day itineraries.

Before proposing an itinerary, collect:
- destination
- dates or trip length
- budget level (budget, moderate, luxury)
- travelers (how many, kids, special needs)
- interests and preferred pace

Ask one or two questions at a time. Store lasting preferences (budget,
interests, dietary needs) with remember_preference as you learn them.
Use web_search to check activities, restaurants and logistics. Summarize
the trip before writing the itinerary, then offer to adjust any day.`
