package lattice

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

type elementSpec struct {
	Name      string  `yaml:"name"`
	Family    string  `yaml:"family"`
	Kind      string  `yaml:"kind"`
	Length    float64 `yaml:"length"`
	Angle     float64 `yaml:"angle"`
	K1        float64 `yaml:"k1"`
	K2        float64 `yaml:"k2"`
	Frequency float64 `yaml:"frequency"`
	Voltage   float64 `yaml:"voltage"`
	Repeat    int     `yaml:"repeat"`
}

type ringSpec struct {
	Name     string        `yaml:"name"`
	Energy   float64       `yaml:"energy"`
	Cells    int           `yaml:"cells"`
	Elements []elementSpec `yaml:"elements"`
}

// Load reads a ring definition from a YAML file. The element sequence is
// repeated `cells` times to build the full ring.
func Load(path string) (*Lattice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec ringSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse ring file %s: %w", path, err)
	}
	return build(&spec)
}

func build(spec *ringSpec) (*Lattice, error) {
	cells := spec.Cells
	if cells <= 0 {
		cells = 1
	}
	lat := &Lattice{Name: spec.Name, Energy: spec.Energy}
	for cell := 0; cell < cells; cell++ {
		for _, es := range spec.Elements {
			repeat := es.Repeat
			if repeat <= 0 {
				repeat = 1
			}
			for r := 0; r < repeat; r++ {
				el, err := es.element()
				if err != nil {
					return nil, err
				}
				if el.Name == "" {
					el.Name = fmt.Sprintf("%s%d", el.Family, len(lat.Elements)+1)
				}
				lat.Elements = append(lat.Elements, el)
			}
		}
	}
	if err := lat.Validate(); err != nil {
		return nil, err
	}
	return lat, nil
}

func (es *elementSpec) element() (*Element, error) {
	el := &Element{
		Name:      es.Name,
		Family:    es.Family,
		Kind:      Kind(es.Kind),
		Length:    es.Length,
		BendAngle: es.Angle,
		Frequency: es.Frequency,
		Voltage:   es.Voltage,
	}
	switch el.Kind {
	case Quadrupole:
		el.SetPolyB(1, es.K1)
	case Sextupole:
		el.SetPolyB(2, es.K2)
	case Corrector:
		// kicks start at zero, set at runtime
	case "":
		return nil, fmt.Errorf("element %q has no kind", es.Name)
	}
	if el.Family == "" {
		el.Family = defaultFamily(el.Kind)
	}
	return el, nil
}

func defaultFamily(k Kind) string {
	switch k {
	case Dipole:
		return "BEND"
	case Quadrupole:
		return "QUAD"
	case Sextupole:
		return "SEXT"
	case Corrector:
		return "HSTR"
	case Cavity:
		return "RF"
	case Monitor:
		return "BPM"
	default:
		return "DRIFT"
	}
}

// Demo builds a small FODO storage ring with correctors, sextupoles,
// monitors and one cavity. It is used when no ring file is configured
// and throughout the tests.
func Demo() *Lattice {
	const cells = 8
	bendAngle := 2 * math.Pi / (2 * cells)
	lat := &Lattice{Name: "demo", Energy: 3e9}
	add := func(e *Element) {
		if e.Name == "" {
			e.Name = fmt.Sprintf("%s%d", e.Family, len(lat.Elements)+1)
		}
		lat.Elements = append(lat.Elements, e)
	}
	for cell := 0; cell < cells; cell++ {
		add(&Element{Family: "BPM", Kind: Monitor})
		qf := &Element{Family: "QUAD", Kind: Quadrupole, Length: 0.5}
		qf.SetPolyB(1, 0.3)
		add(qf)
		add(&Element{Family: "DRIFT", Kind: Drift, Length: 0.75})
		add(&Element{Family: "HSTR", Kind: Corrector, Length: 0.1})
		sd := &Element{Family: "SEXT", Kind: Sextupole, Length: 0.2}
		sd.SetPolyB(2, -4.0)
		add(sd)
		add(&Element{Family: "BEND", Kind: Dipole, Length: 1.5, BendAngle: bendAngle})
		add(&Element{Family: "DRIFT", Kind: Drift, Length: 0.75})
		qd := &Element{Family: "QUAD", Kind: Quadrupole, Length: 0.5}
		qd.SetPolyB(1, -0.3)
		add(qd)
		add(&Element{Family: "DRIFT", Kind: Drift, Length: 0.75})
		sf := &Element{Family: "SEXT", Kind: Sextupole, Length: 0.2}
		sf.SetPolyB(2, 3.2)
		add(sf)
		add(&Element{Family: "BEND", Kind: Dipole, Length: 1.5, BendAngle: bendAngle})
		add(&Element{Family: "DRIFT", Kind: Drift, Length: 0.75})
	}
	add(&Element{Family: "RF", Kind: Cavity, Length: 0.3, Frequency: 499.654e6, Voltage: 2.2e6})
	return lat
}
