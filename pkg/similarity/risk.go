package similarity

import (
	"strings"

	"github.com/iamgideonidoko/signet-match/internal/models"
)

// software rasterizers used by headless browsers
var softwareRenderers = []string{"swiftshader", "llvmpipe", "softpipe"}

// discrete desktop GPUs that cannot appear on a phone or tablet
var desktopGPUs = []string{"geforce", "radeon rx", "quadro", "rtx "}

// AutomationDetected reports upstream automation flags or a software WebGL renderer.
func AutomationDetected(f models.Fingerprint) bool {
	if f.Automation.Any() {
		return true
	}
	if w := f.Core.WebGL; w != nil {
		if normalize(w.Vendor) == "brian paul" {
			return true
		}
		renderer := normalize(w.Renderer)
		for _, sw := range softwareRenderers {
			if strings.Contains(renderer, sw) {
				return true
			}
		}
	}
	return false
}

// SpoofingDetected reports signal combinations real hardware does not produce.
func SpoofingDetected(f models.Fingerprint) bool {
	if w := f.Core.WebGL; w != nil {
		category := categoryFromUserAgent(f.UserAgent)
		if category == models.DeviceMobile || category == models.DeviceTablet {
			renderer := normalize(w.Renderer)
			for _, gpu := range desktopGPUs {
				if strings.Contains(renderer, gpu) {
					return true
				}
			}
		}
	}

	// clamped clocks report zero for every probe
	if len(f.Core.Timing) >= 2 {
		for _, v := range f.Core.Timing {
			if v != 0 {
				return false
			}
		}
		return true
	}
	return false
}

// InferCategory derives a device category from the user agent, falling back to
// touch and motion sensor hints.
func InferCategory(f models.Fingerprint) models.DeviceCategory {
	if c := categoryFromUserAgent(f.UserAgent); c != models.DeviceUnknown {
		return c
	}
	if f.MaxTouchPoints > 0 && f.Advanced.Sensors["accelerometer"] {
		return models.DeviceMobile
	}
	return models.DeviceUnknown
}

func categoryFromUserAgent(ua string) models.DeviceCategory {
	ua = normalize(ua)
	switch {
	case ua == "":
		return models.DeviceUnknown
	case strings.Contains(ua, "ipad"),
		strings.Contains(ua, "tablet"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return models.DeviceTablet
	case strings.Contains(ua, "mobi"), strings.Contains(ua, "iphone"), strings.Contains(ua, "android"):
		return models.DeviceMobile
	default:
		return models.DeviceDesktop
	}
}
