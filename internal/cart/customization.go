package cart

import "strings"

// Customization is the structured made-to-order configuration captured by the
// product configurator.
type Customization struct {
	Styles  []Choice `json:"styles"`
	Fabric  Fabric   `json:"fabric"`
	Fit     string   `json:"fit"`
	Details []Choice `json:"details"`
}

// Choice is a named option such as collar=spread or monogram=ALK.
type Choice struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Fabric struct {
	Material string `json:"material"`
	Color    string `json:"color"`
}

const (
	SelectionFabricMaterial = "fabric_material"
	SelectionFabricColor    = "fabric_color"
	SelectionFit            = "fit"
)

// Selections flattens the customization into ordered {type, value} pairs:
// style choices, fabric material and color, fit, then populated details.
func (c Customization) Selections() []Selection {
	var out []Selection
	for _, style := range c.Styles {
		if pair, ok := choicePair(style); ok {
			out = append(out, pair)
		}
	}
	if v := strings.TrimSpace(c.Fabric.Material); v != "" {
		out = append(out, Selection{Type: SelectionFabricMaterial, Value: v})
	}
	if v := strings.TrimSpace(c.Fabric.Color); v != "" {
		out = append(out, Selection{Type: SelectionFabricColor, Value: v})
	}
	if v := strings.TrimSpace(c.Fit); v != "" {
		out = append(out, Selection{Type: SelectionFit, Value: v})
	}
	for _, detail := range c.Details {
		if pair, ok := choicePair(detail); ok {
			out = append(out, pair)
		}
	}
	return out
}

func choicePair(c Choice) (Selection, bool) {
	name := strings.TrimSpace(c.Name)
	value := strings.TrimSpace(c.Value)
	if name == "" || value == "" {
		return Selection{}, false
	}
	return Selection{Type: name, Value: value}, true
}
