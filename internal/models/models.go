package models

// Fingerprint is the signal bundle captured for one recognition attempt.
type Fingerprint struct {
	Core       CoreSignals       `json:"core"`
	Advanced   AdvancedSignals   `json:"advanced"`
	Behavioral *BehavioralData   `json:"behavioral,omitempty"`
	Automation AutomationSignals `json:"automation"`

	// collector metadata used for category inference and spoofing checks
	UserAgent      string `json:"user_agent"`
	MaxTouchPoints int    `json:"max_touch_points"`
}

type CoreSignals struct {
	// gpu / rendering
	CanvasHash string     `json:"canvas_hash"`
	WebGL      *WebGLInfo `json:"webgl,omitempty"`

	// hardware dynamics
	AudioHash string `json:"audio_hash"`

	// system environment
	Fonts       []string           `json:"fonts,omitempty"`
	CSSFeatures map[string]bool    `json:"css_features,omitempty"`
	Timing      map[string]float64 `json:"timing,omitempty"`
}

type WebGLInfo struct {
	Vendor   string `json:"vendor"`
	Renderer string `json:"renderer"`
}

type AdvancedSignals struct {
	Battery      *BatteryStatus  `json:"battery,omitempty"`
	MediaDevices *MediaDevices   `json:"media_devices,omitempty"`
	Sensors      map[string]bool `json:"sensors,omitempty"`
	Network      *NetworkHints   `json:"network,omitempty"`
	Plugins      []string        `json:"plugins,omitempty"`
}

type BatteryStatus struct {
	Supported bool `json:"supported"`
	Charging  bool `json:"charging"`
}

type MediaDevices struct {
	AudioInputs  int `json:"audio_inputs"`
	AudioOutputs int `json:"audio_outputs"`
	VideoInputs  int `json:"video_inputs"`
}

// NetworkHints carries connection hints and WebRTC-derived identifiers.
type NetworkHints struct {
	ConnectionType   string  `json:"connection_type,omitempty"`
	EffectiveType    string  `json:"effective_type,omitempty"`
	RTT              int     `json:"rtt,omitempty"`
	Downlink         float64 `json:"downlink,omitempty"`
	WebRTCLocalHash  string  `json:"webrtc_local_hash,omitempty"`
	WebRTCPublicHash string  `json:"webrtc_public_hash,omitempty"`
}

func (n *NetworkHints) empty() bool {
	return n == nil || (n.ConnectionType == "" && n.EffectiveType == "" && n.RTT == 0 &&
		n.Downlink == 0 && n.WebRTCLocalHash == "" && n.WebRTCPublicHash == "")
}

// BehavioralData summarizes interaction patterns observed during a session.
type BehavioralData struct {
	PointerType      string  `json:"pointer_type"` // touch, mouse, pen
	TypingIntervalMs float64 `json:"typing_interval_ms,omitempty"`
	ClickIntervalMs  float64 `json:"click_interval_ms,omitempty"`
	ScrollVelocity   float64 `json:"scroll_velocity,omitempty"`
	Samples          int     `json:"samples,omitempty"`
}

// AutomationSignals are bot/automation probes surfaced by the collector.
type AutomationSignals struct {
	WebDriver         bool `json:"webdriver"`
	HeadlessChrome    bool `json:"headless_chrome"`
	PhantomPresent    bool `json:"phantom_present"`
	SeleniumPresent   bool `json:"selenium_present"`
	AutomationPresent bool `json:"automation_present"`
}

// Any reports whether any automation probe fired.
func (a AutomationSignals) Any() bool {
	return a.WebDriver || a.HeadlessChrome || a.PhantomPresent || a.SeleniumPresent || a.AutomationPresent
}

// Has reports whether the component carries a value in this bundle.
func (f Fingerprint) Has(c Component) bool {
	switch c {
	case ComponentCanvas:
		return f.Core.CanvasHash != ""
	case ComponentWebGL:
		return f.Core.WebGL != nil && (f.Core.WebGL.Vendor != "" || f.Core.WebGL.Renderer != "")
	case ComponentAudio:
		return f.Core.AudioHash != ""
	case ComponentFonts:
		return len(f.Core.Fonts) > 0
	case ComponentCSSFeatures:
		return len(f.Core.CSSFeatures) > 0
	case ComponentTiming:
		return len(f.Core.Timing) > 0
	case ComponentBattery:
		return f.Advanced.Battery != nil
	case ComponentMediaDevices:
		return f.Advanced.MediaDevices != nil
	case ComponentSensors:
		return len(f.Advanced.Sensors) > 0
	case ComponentNetwork:
		return !f.Advanced.Network.empty()
	case ComponentPlugins:
		return len(f.Advanced.Plugins) > 0
	case ComponentBehavioral:
		return f.Behavioral != nil
	default:
		return false
	}
}
