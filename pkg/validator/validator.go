package validator

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/iamgideonidoko/signet-match/internal/models"
)

const (
	maxUserAgentLen  = 1000
	maxIdentifierLen = 128
	maxItemLen       = 256
	maxFonts         = 1000
	maxPlugins       = 500
	maxMapEntries    = 100
	maxTouchPoints   = 256

	invalidFormat = "invalid format"

	// MaxCandidates bounds the candidate list accepted by the stateless match endpoint.
	MaxCandidates = 10000
)

var (
	hashRegex    = regexp.MustCompile(`^[a-fA-F0-9]{8,128}$`)
	tenantRegex  = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	placeholders = map[string]bool{"error": true, "no_context": true, "blocked": true, "unknown": true}
	pointerTypes = map[string]bool{"": true, "mouse": true, "touch": true, "pen": true}
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is returned when one or more fields fail validation.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type Validator struct {
	errors []ValidationError
}

func New() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

func (v *Validator) ErrorMap() map[string]string {
	result := make(map[string]string)
	for _, err := range v.errors {
		result[err.Field] = err.Message
	}
	return result
}

// Err returns the collected errors, or nil when there are none.
func (v *Validator) Err() error {
	if v.IsValid() {
		return nil
	}
	return ValidationErrors(v.errors)
}

func ValidateRecognizeRequest(req models.RecognizeRequest) error {
	v := New()

	switch {
	case req.TenantID == "":
		v.AddError("tenant_id", "required")
	case len(req.TenantID) > maxIdentifierLen:
		v.AddError("tenant_id", "too long")
	case !tenantRegex.MatchString(req.TenantID):
		v.AddError("tenant_id", invalidFormat)
	}

	if req.UserID != nil && (*req.UserID == "" || len(*req.UserID) > maxItemLen) {
		v.AddError("user_id", "must be 1-256 characters")
	}
	if req.Location != nil && len(*req.Location) > maxItemLen {
		v.AddError("location", "too long")
	}

	checkFingerprint(v, "fingerprint", req.Fingerprint)
	return v.Err()
}

func ValidateMatchRequest(req models.MatchRequest) error {
	v := New()
	checkFingerprint(v, "current", req.Current)
	if len(req.Candidates) > MaxCandidates {
		v.AddError("candidates", fmt.Sprintf("at most %d allowed", MaxCandidates))
	}
	return v.Err()
}

// ValidateFingerprint checks a bundle on its own.
func ValidateFingerprint(f models.Fingerprint) error {
	v := New()
	checkFingerprint(v, "fingerprint", f)
	return v.Err()
}

func checkFingerprint(v *Validator, prefix string, f models.Fingerprint) {
	field := func(name string) string { return prefix + "." + name }

	if h := f.Core.CanvasHash; h != "" && !placeholders[strings.ToLower(h)] && !hashRegex.MatchString(h) {
		v.AddError(field("core.canvas_hash"), invalidFormat)
	}
	if len(f.Core.AudioHash) > maxIdentifierLen {
		v.AddError(field("core.audio_hash"), "too long")
	}
	if gl := f.Core.WebGL; gl != nil && (len(gl.Vendor) > maxItemLen || len(gl.Renderer) > maxItemLen) {
		v.AddError(field("core.webgl"), "too long")
	}

	checkList(v, field("core.fonts"), f.Core.Fonts, maxFonts)
	checkList(v, field("advanced.plugins"), f.Advanced.Plugins, maxPlugins)

	if len(f.Core.CSSFeatures) > maxMapEntries {
		v.AddError(field("core.css_features"), "too many entries")
	}
	if len(f.Advanced.Sensors) > maxMapEntries {
		v.AddError(field("advanced.sensors"), "too many entries")
	}
	if len(f.Core.Timing) > maxMapEntries {
		v.AddError(field("core.timing"), "too many entries")
	}
	for _, probe := range sortedKeys(f.Core.Timing) {
		if ms := f.Core.Timing[probe]; ms < 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
			v.AddError(field("core.timing."+probe), "must be a finite non-negative number")
		}
	}

	if m := f.Advanced.MediaDevices; m != nil && (m.AudioInputs < 0 || m.AudioOutputs < 0 || m.VideoInputs < 0) {
		v.AddError(field("advanced.media_devices"), "counts must be non-negative")
	}
	if n := f.Advanced.Network; n != nil && (n.RTT < 0 || n.Downlink < 0) {
		v.AddError(field("advanced.network"), "rtt and downlink must be non-negative")
	}

	if b := f.Behavioral; b != nil {
		if !pointerTypes[b.PointerType] {
			v.AddError(field("behavioral.pointer_type"), "must be mouse, touch or pen")
		}
		if b.TypingIntervalMs < 0 || b.ClickIntervalMs < 0 || b.ScrollVelocity < 0 || b.Samples < 0 {
			v.AddError(field("behavioral"), "values must be non-negative")
		}
	}

	if len(f.UserAgent) > maxUserAgentLen {
		v.AddError(field("user_agent"), "too long")
	}
	if f.MaxTouchPoints < 0 || f.MaxTouchPoints > maxTouchPoints {
		v.AddError(field("max_touch_points"), "out of range")
	}
}

func checkList(v *Validator, field string, items []string, limit int) {
	if len(items) > limit {
		v.AddError(field, "too many entries")
		return
	}
	for _, item := range items {
		if len(item) > maxItemLen {
			v.AddError(field, "entry too long")
			return
		}
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SanitizeString drops NUL and other control characters except newline and tab.
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	var result strings.Builder
	for _, r := range s {
		if r >= 32 || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// SanitizeFingerprint strips control characters from free-text fields in place.
func SanitizeFingerprint(f *models.Fingerprint) {
	f.UserAgent = SanitizeString(f.UserAgent)
	if f.Core.WebGL != nil {
		f.Core.WebGL.Vendor = SanitizeString(f.Core.WebGL.Vendor)
		f.Core.WebGL.Renderer = SanitizeString(f.Core.WebGL.Renderer)
	}
	for i, font := range f.Core.Fonts {
		f.Core.Fonts[i] = SanitizeString(font)
	}
	for i, plugin := range f.Advanced.Plugins {
		f.Advanced.Plugins[i] = SanitizeString(plugin)
	}
}
