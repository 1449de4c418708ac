package doctype

// File is the YAML shape of a document type configuration file.
type File struct {
	DocumentTypes map[string]ProfileSpec `yaml:"document_types" json:"document_types"`
}

// ProfileSpec is the raw configuration for one document type. The keys
// required_fields, optional_fields, field_patterns, strict_floor,
// fallback_floor and field_weights are the recognized core keys; the rest
// tune extraction.
type ProfileSpec struct {
	Strategy       string                      `yaml:"strategy" json:"strategy"`
	Satisfies      []string                    `yaml:"satisfies" json:"satisfies"`
	RequiredFields []string                    `yaml:"required_fields" json:"required_fields"`
	OptionalFields []string                    `yaml:"optional_fields" json:"optional_fields"`
	FieldPatterns  map[string]FieldPatternSpec `yaml:"field_patterns" json:"field_patterns"`
	StrictFloor    float64                     `yaml:"strict_floor" json:"strict_floor"`
	FallbackFloor  float64                     `yaml:"fallback_floor" json:"fallback_floor"`
	FieldWeights   map[string]float64          `yaml:"field_weights" json:"field_weights"`
	ExclusionZones []ZoneSpec                  `yaml:"exclusion_zones" json:"exclusion_zones"`
}

// FieldPatternSpec describes how a field is found and validated.
type FieldPatternSpec struct {
	Pattern   string    `yaml:"pattern" json:"pattern"`
	Partial   string    `yaml:"partial" json:"partial,omitempty"`
	Format    string    `yaml:"format" json:"format,omitempty"`
	Normalize string    `yaml:"normalize" json:"normalize,omitempty"`
	Checksum  string    `yaml:"checksum" json:"checksum,omitempty"`
	Labels    []string  `yaml:"labels" json:"labels,omitempty"`
	Exclude   []string  `yaml:"exclude" json:"exclude,omitempty"`
	Zone      *ZoneSpec `yaml:"zone" json:"zone,omitempty"`
	MaxLines  int       `yaml:"max_lines" json:"max_lines,omitempty"`
	MinLength int       `yaml:"min_length" json:"min_length,omitempty"`
	DateRule  string    `yaml:"date_rule" json:"date_rule,omitempty"`
	MinAge    *int      `yaml:"min_age" json:"min_age,omitempty"`
	MaxAge    *int      `yaml:"max_age" json:"max_age,omitempty"`
	Penalty   *float64  `yaml:"penalty" json:"penalty,omitempty"`

	MinConfidence          float64 `yaml:"min_confidence" json:"min_confidence"`
	RelaxedMinConfidence   float64 `yaml:"relaxed_min_confidence" json:"relaxed_min_confidence,omitempty"`
	TargetConfidence       float64 `yaml:"target_confidence" json:"target_confidence,omitempty"`
	ShortCircuitConfidence float64 `yaml:"short_circuit_confidence" json:"short_circuit_confidence,omitempty"`
}

// ZoneSpec is a rectangle expressed as fractions of the image size.
type ZoneSpec struct {
	X0 float64 `yaml:"x0" json:"x0"`
	Y0 float64 `yaml:"y0" json:"y0"`
	X1 float64 `yaml:"x1" json:"x1"`
	Y1 float64 `yaml:"y1" json:"y1"`
}
