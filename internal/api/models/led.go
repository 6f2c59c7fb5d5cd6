package models

type LEDRequest struct {
	Body struct {
		Type    string  `json:"type" example:"indicator" doc:"LED type, see /api/leds/capabilities"`
		Enabled bool    `json:"enabled" example:"true" doc:"Whether the LED should be on"`
		Pattern *string `json:"pattern,omitempty" example:"blink" doc:"Optional pattern: solid, blink or heartbeat"`
	}
}

type LEDCapabilities struct {
	AvailableTypes    []string `json:"available_types" doc:"LED types present on this board"`
	AvailablePatterns []string `json:"available_patterns" doc:"Patterns the LEDs support"`
}

type LEDCapabilitiesResponse struct {
	Body LEDCapabilities
}
