package models

// SampleFingerprint returns a fully populated desktop bundle without behavioral
// data. It backs `signetctl sample` and is the baseline fixture in tests.
func SampleFingerprint() Fingerprint {
	return Fingerprint{
		Core: CoreSignals{
			CanvasHash: "c4a1f0e9b27d",
			WebGL: &WebGLInfo{
				Vendor:   "Apple",
				Renderer: "Apple M2",
			},
			AudioHash: "124.04347527516074",
			Fonts: []string{
				"Arial", "Avenir", "Courier New", "Futura", "Georgia", "Helvetica",
				"Helvetica Neue", "Menlo", "Monaco", "Palatino", "Times New Roman", "Verdana",
			},
			CSSFeatures: map[string]bool{
				"grid":            true,
				"container_query": true,
				"has_selector":    true,
				"backdrop_filter": true,
				"color_mix":       false,
			},
			Timing: map[string]float64{
				"math_loop_ms":   4.2,
				"sort_ms":        11.8,
				"crypto_hash_ms": 2.6,
			},
		},
		Advanced: AdvancedSignals{
			Battery:      &BatteryStatus{Supported: true, Charging: true},
			MediaDevices: &MediaDevices{AudioInputs: 1, AudioOutputs: 2, VideoInputs: 1},
			Sensors: map[string]bool{
				"accelerometer": false,
				"gyroscope":     false,
				"ambient_light": true,
			},
			Network: &NetworkHints{
				ConnectionType:   "wifi",
				EffectiveType:    "4g",
				RTT:              50,
				Downlink:         10,
				WebRTCLocalHash:  "9f2c",
				WebRTCPublicHash: "77ab",
			},
			Plugins: []string{
				"PDF Viewer", "Chrome PDF Viewer", "Chromium PDF Viewer", "Microsoft Edge PDF Viewer",
				"WebKit built-in PDF", "uBlock Origin", "1Password", "React Developer Tools",
				"Grammarly", "Dark Reader",
			},
		},
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}
