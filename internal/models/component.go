package models

import "fmt"

// Component is one named signal within a fingerprint bundle.
type Component uint8

const (
	ComponentCanvas Component = iota + 1
	ComponentWebGL
	ComponentAudio
	ComponentFonts
	ComponentCSSFeatures
	ComponentTiming
	ComponentBattery
	ComponentMediaDevices
	ComponentSensors
	ComponentNetwork
	ComponentPlugins
	ComponentBehavioral
)

// Layer groups components by how they are collected.
type Layer string

const (
	LayerCore       Layer = "core"
	LayerAdvanced   Layer = "advanced"
	LayerBehavioral Layer = "behavioral"
)

var componentNames = map[Component]string{
	ComponentCanvas:       "canvas",
	ComponentWebGL:        "webgl",
	ComponentAudio:        "audio",
	ComponentFonts:        "fonts",
	ComponentCSSFeatures:  "css_features",
	ComponentTiming:       "timing",
	ComponentBattery:      "battery",
	ComponentMediaDevices: "media_devices",
	ComponentSensors:      "sensors",
	ComponentNetwork:      "network",
	ComponentPlugins:      "plugins",
	ComponentBehavioral:   "behavioral",
}

var componentsByName = func() map[string]Component {
	out := make(map[string]Component, len(componentNames))
	for c, name := range componentNames {
		out[name] = c
	}
	return out
}()

// CoreComponents are the high-entropy, device-specific signals.
var CoreComponents = []Component{
	ComponentCanvas, ComponentWebGL, ComponentAudio,
	ComponentFonts, ComponentCSSFeatures, ComponentTiming,
}

// AdvancedComponents are cheap corroborating signals.
var AdvancedComponents = []Component{
	ComponentBattery, ComponentMediaDevices, ComponentSensors,
	ComponentNetwork, ComponentPlugins,
}

// AllComponents lists every component in scoring order.
var AllComponents = append(append(append([]Component{}, CoreComponents...), AdvancedComponents...), ComponentBehavioral)

func (c Component) String() string {
	if name, ok := componentNames[c]; ok {
		return name
	}
	return fmt.Sprintf("component(%d)", uint8(c))
}

// Layer reports which part of the bundle carries c.
func (c Component) Layer() Layer {
	switch {
	case c >= ComponentCanvas && c <= ComponentTiming:
		return LayerCore
	case c >= ComponentBattery && c <= ComponentPlugins:
		return LayerAdvanced
	default:
		return LayerBehavioral
	}
}

// ParseComponent resolves a component by its wire name.
func ParseComponent(name string) (Component, error) {
	c, ok := componentsByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown component %q", name)
	}
	return c, nil
}

func (c Component) MarshalText() ([]byte, error) {
	name, ok := componentNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown component %d", uint8(c))
	}
	return []byte(name), nil
}

func (c *Component) UnmarshalText(text []byte) error {
	parsed, err := ParseComponent(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
