package domain

import "time"

// DefaultChromaKeyThreshold is the per-channel ceiling under which a
// watermark pixel is treated as a transparency hole. Watermark assets are
// authored with true-black regions marking where the photo shows through;
// the threshold absorbs compression noise around pure black.
const DefaultChromaKeyThreshold uint8 = 10

// ProjectConfig is the per-project configuration consumed by the pipeline,
// polled once per run.
type ProjectConfig struct {
	ID                 string
	OutputWidth        int
	OutputHeight       int
	CountdownEnabled   bool
	CountdownTicks     int
	MaxProcessingTime  time.Duration
	WatermarkURL       string
	BillingAccountID   string
	ChromaKeyThreshold uint8
	Locale             string
}

// Normalize applies defaults for unset fields.
func (c *ProjectConfig) Normalize() {
	if c.OutputWidth <= 0 {
		c.OutputWidth = 970
	}
	if c.OutputHeight <= 0 {
		c.OutputHeight = 651
	}
	if c.CountdownTicks <= 0 {
		c.CountdownTicks = 3
	}
	if c.MaxProcessingTime <= 0 {
		c.MaxProcessingTime = 90 * time.Second
	}
	if c.ChromaKeyThreshold == 0 {
		c.ChromaKeyThreshold = DefaultChromaKeyThreshold
	}
	if c.Locale == "" {
		c.Locale = "en"
	}
}
