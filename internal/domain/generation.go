package domain

// StabilityParams are the options parsed from a /generate message.
// Pointer and empty-string fields mean "not given".
type StabilityParams struct {
	Prompt         string
	NegativePrompt string
	Strength       *float64
	Model          string
	Seed           *int64
	OutputFormat   string
	AspectRatio    string
	Image          []byte // input image; switches the request to image-to-image
}

// FireworksParams are the options parsed from a /fireworks message.
type FireworksParams struct {
	Prompt            string
	NegativePrompt    string
	Height            *int
	Width             *int
	CFGScale          *float64
	Sampler           string
	Samples           *int
	Seed              *int64
	Steps             *int
	SafetyCheck       *bool
	OutputImageFormat string
}
