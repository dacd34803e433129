package command

import (
	"errors"
	"strconv"
	"testing"
)

func TestParseGenerate_AllFields(t *testing.T) {
	msg := "/generate  a red fox  \n" +
		"Negative Prompt: blurry\n" +
		"  Strength: 0.8  \n" +
		"Model: sd\n" +
		"Seed: 42\n" +
		"Output Format: png\n" +
		"Aspect Ratio: 16:9\n" +
		"Unknown: ignored"

	p, err := ParseGenerate(EchoCommands.Classify(msg), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Prompt != "a red fox" {
		t.Errorf("prompt = %q", p.Prompt)
	}
	if p.NegativePrompt != "blurry" {
		t.Errorf("negative prompt = %q", p.NegativePrompt)
	}
	if p.Strength == nil || *p.Strength != 0.8 {
		t.Errorf("strength = %v", p.Strength)
	}
	if p.Model != "sd" {
		t.Errorf("model = %q", p.Model)
	}
	if p.Seed == nil || *p.Seed != 42 {
		t.Errorf("seed = %v", p.Seed)
	}
	if p.OutputFormat != "png" {
		t.Errorf("output format = %q", p.OutputFormat)
	}
	if p.AspectRatio != "16:9" {
		t.Errorf("aspect ratio = %q, want value after the first colon", p.AspectRatio)
	}
}

func TestParseGenerate_Defaults(t *testing.T) {
	msg := "/generate cat"
	p, err := ParseGenerate(EchoCommands.Classify(msg), msg)
	if err != nil {
		t.Fatal(err)
	}
	if p.Strength != nil || p.Seed != nil || p.Model != "" || p.OutputFormat != "" {
		t.Errorf("expected no optional fields, got %+v", p)
	}
}

func TestParseGenerate_BadSeed(t *testing.T) {
	msg := "/generate cat\nSeed: notanumber"
	_, err := ParseGenerate(EchoCommands.Classify(msg), msg)
	if err == nil {
		t.Fatal("expected error for malformed seed")
	}
	var pe *ParamError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParamError, got %T", err)
	}
	if pe.Label != "Seed" || pe.Value != "notanumber" {
		t.Errorf("unexpected error fields: %+v", pe)
	}
	if !errors.Is(err, strconv.ErrSyntax) {
		t.Errorf("expected wrapped strconv.ErrSyntax, got %v", err)
	}
}

func TestParseGenerate_BadStrength(t *testing.T) {
	msg := "/generate cat\nStrength: lots"
	if _, err := ParseGenerate(EchoCommands.Classify(msg), msg); err == nil {
		t.Fatal("expected error for malformed strength")
	}
}

func TestParseGenerate_LabelsAreCaseSensitive(t *testing.T) {
	msg := "/generate cat\nseed: nope\nmodel: sd"
	p, err := ParseGenerate(EchoCommands.Classify(msg), msg)
	if err != nil {
		t.Fatalf("lowercase labels should be ignored, got %v", err)
	}
	if p.Model != "" {
		t.Errorf("model = %q", p.Model)
	}
}

func TestParseFireworks_AllFields(t *testing.T) {
	msg := "/fireworks neon city\n" +
		"Negative Prompt: people\n" +
		"Height: 768\n" +
		"Width: 512\n" +
		"CFG Scale: 9.5\n" +
		"Sampler: K_EULER\n" +
		"Samples: 2\n" +
		"Seed: 7\n" +
		"Steps: 30\n" +
		"Safety Check: FALSE\n" +
		"Output Image Format: PNG"

	p, err := ParseFireworks(EchoCommands.Classify(msg), msg)
	if err != nil {
		t.Fatal(err)
	}
	if p.Prompt != "neon city" {
		t.Errorf("prompt = %q", p.Prompt)
	}
	if p.Height == nil || *p.Height != 768 || p.Width == nil || *p.Width != 512 {
		t.Errorf("size = %v x %v", p.Height, p.Width)
	}
	if p.CFGScale == nil || *p.CFGScale != 9.5 {
		t.Errorf("cfg = %v", p.CFGScale)
	}
	if p.Sampler != "K_EULER" {
		t.Errorf("sampler = %q", p.Sampler)
	}
	if p.Samples == nil || *p.Samples != 2 {
		t.Errorf("samples = %v", p.Samples)
	}
	if p.Seed == nil || *p.Seed != 7 {
		t.Errorf("seed = %v", p.Seed)
	}
	if p.Steps == nil || *p.Steps != 30 {
		t.Errorf("steps = %v", p.Steps)
	}
	if p.SafetyCheck == nil || *p.SafetyCheck {
		t.Errorf("safety check = %v", p.SafetyCheck)
	}
	if p.OutputImageFormat != FormatPNG {
		t.Errorf("format = %q", p.OutputImageFormat)
	}
}

func TestParseFireworks_FormatFallback(t *testing.T) {
	for _, in := range []string{"XML", "png", "Jpeg", ""} {
		msg := "/fireworks x\nOutput Image Format: " + in
		p, err := ParseFireworks(EchoCommands.Classify(msg), msg)
		if err != nil {
			t.Fatal(err)
		}
		if p.OutputImageFormat != FormatJPEG {
			t.Errorf("format %q should fall back to JPEG, got %q", in, p.OutputImageFormat)
		}
	}
}

func TestParseFireworks_SafetyCheckTrue(t *testing.T) {
	msg := "/fireworks x\nSafety Check: True"
	p, err := ParseFireworks(EchoCommands.Classify(msg), msg)
	if err != nil {
		t.Fatal(err)
	}
	if p.SafetyCheck == nil || !*p.SafetyCheck {
		t.Errorf("expected safety check true, got %v", p.SafetyCheck)
	}
}

func TestParseFireworks_BadHeight(t *testing.T) {
	msg := "/fireworks x\nHeight: 1.5"
	if _, err := ParseFireworks(EchoCommands.Classify(msg), msg); err == nil {
		t.Fatal("expected error for non-integer height")
	}
}
