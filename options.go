package replay

// InputProcessorConfig holds the small set of knobs shared by both the live
// InputProcessor and the ForceFeederInputProcessor, configured via the
// functional-options pattern (grounded on sinker_options.go's Option type).
type InputProcessorConfig struct {
	// RecordsInMetricName is the name used to look up (or register) the
	// records-in counter on the operator's metric group.
	RecordsInMetricName string
}

// Option configures an InputProcessorConfig.
type Option func(*InputProcessorConfig)

func defaultInputProcessorConfig() *InputProcessorConfig {
	return &InputProcessorConfig{RecordsInMetricName: "numRecordsIn"}
}

// WithRecordsInMetricName overrides the default "numRecordsIn" counter name
// looked up on the operator's metric group.
func WithRecordsInMetricName(name string) Option {
	return func(c *InputProcessorConfig) {
		c.RecordsInMetricName = name
	}
}
