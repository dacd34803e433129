package command

import (
	"fmt"
	"strconv"
	"strings"

	"echobot/internal/domain"
)

// Output formats accepted by the Fireworks image endpoint.
const (
	FormatJPEG = "JPEG"
	FormatPNG  = "PNG"
)

// ParamError reports a parameter line whose value could not be converted.
type ParamError struct {
	Label string
	Value string
	Err   error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %v", e.Value, e.Label, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

// body splits a message into its prompt and parameter lines.
func body(spec Spec, text string) (prompt string, params []string) {
	lines := strings.Split(text, "\n")
	return strings.TrimSpace(spec.Argument(lines[0])), lines[1:]
}

// field reports whether line starts with label and returns the trimmed value
// after the first colon.
func field(line, label string) (string, bool) {
	if !strings.HasPrefix(line, label) {
		return "", false
	}
	_, value, _ := strings.Cut(line, ":")
	return strings.TrimSpace(value), true
}

func parseFloat(label, value string) (*float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, &ParamError{Label: label, Value: value, Err: err}
	}
	return &f, nil
}

func parseInt64(label, value string) (*int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, &ParamError{Label: label, Value: value, Err: err}
	}
	return &n, nil
}

func parseInt(label, value string) (*int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, &ParamError{Label: label, Value: value, Err: err}
	}
	return &n, nil
}

// ParseGenerate parses a /generate message.
//
//	/generate <prompt>
//	Negative Prompt: ...
//	Strength: 0.7
//	Model: sd3
//	Seed: 42
//	Output Format: png
//	Aspect Ratio: 16:9
func ParseGenerate(spec Spec, text string) (domain.StabilityParams, error) {
	var p domain.StabilityParams
	var lines []string
	p.Prompt, lines = body(spec, text)

	for _, line := range lines {
		line = strings.TrimSpace(line)
		var err error
		if v, ok := field(line, "Negative Prompt:"); ok {
			p.NegativePrompt = v
		} else if v, ok := field(line, "Strength:"); ok {
			p.Strength, err = parseFloat("Strength", v)
		} else if v, ok := field(line, "Model:"); ok {
			p.Model = v
		} else if v, ok := field(line, "Seed:"); ok {
			p.Seed, err = parseInt64("Seed", v)
		} else if v, ok := field(line, "Output Format:"); ok {
			p.OutputFormat = v
		} else if v, ok := field(line, "Aspect Ratio:"); ok {
			p.AspectRatio = v
		}
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

// ParseFireworks parses a /fireworks message. Output Image Format falls back
// to JPEG for anything other than JPEG or PNG.
func ParseFireworks(spec Spec, text string) (domain.FireworksParams, error) {
	var p domain.FireworksParams
	var lines []string
	p.Prompt, lines = body(spec, text)

	for _, line := range lines {
		line = strings.TrimSpace(line)
		var err error
		if v, ok := field(line, "Negative Prompt:"); ok {
			p.NegativePrompt = v
		} else if v, ok := field(line, "Height:"); ok {
			p.Height, err = parseInt("Height", v)
		} else if v, ok := field(line, "Width:"); ok {
			p.Width, err = parseInt("Width", v)
		} else if v, ok := field(line, "CFG Scale:"); ok {
			p.CFGScale, err = parseFloat("CFG Scale", v)
		} else if v, ok := field(line, "Sampler:"); ok {
			p.Sampler = v
		} else if v, ok := field(line, "Samples:"); ok {
			p.Samples, err = parseInt("Samples", v)
		} else if v, ok := field(line, "Seed:"); ok {
			p.Seed, err = parseInt64("Seed", v)
		} else if v, ok := field(line, "Steps:"); ok {
			p.Steps, err = parseInt("Steps", v)
		} else if v, ok := field(line, "Safety Check:"); ok {
			check := strings.ToLower(v) == "true"
			p.SafetyCheck = &check
		} else if v, ok := field(line, "Output Image Format:"); ok {
			if v != FormatJPEG && v != FormatPNG {
				v = FormatJPEG
			}
			p.OutputImageFormat = v
		}
		if err != nil {
			return p, err
		}
	}
	return p, nil
}
