package datamap

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a datamap file.
func Load(path string) ([]*DataMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dms, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dms, nil
}

// Decode reads a YAML list of datamaps.
func Decode(r io.Reader) ([]*DataMap, error) {
	var dms []*DataMap
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&dms); err != nil && err != io.EOF {
		return nil, err
	}
	seen := make(map[string]bool, len(dms))
	for _, dm := range dms {
		if err := dm.Validate(); err != nil {
			return nil, err
		}
		if seen[dm.Name] {
			return nil, fmt.Errorf("%w: duplicate name %s", ErrInvalidDataMap, dm.Name)
		}
		seen[dm.Name] = true
	}
	return dms, nil
}

// SelectOptions narrows Select.
type SelectOptions struct {
	// Klystrons, when non-nil, keeps only klystron stations whose
	// element is listed, as reported by the engine.
	Klystrons []string
}

// Select returns the datamaps named in names, in that order. An empty
// names list selects every datamap. Klystron datamaps are filtered by
// opts and are dropped when no station remains.
func Select(dms []*DataMap, names []string, opts SelectOptions) ([]*DataMap, error) {
	byName := make(map[string]*DataMap, len(dms))
	for _, dm := range dms {
		byName[dm.Name] = dm
	}

	picked := dms
	if len(names) > 0 {
		picked = make([]*DataMap, 0, len(names))
		for _, name := range names {
			dm, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownDataMap, name)
			}
			picked = append(picked, dm)
		}
	}

	if opts.Klystrons == nil {
		return picked, nil
	}
	allowed := make(map[string]bool, len(opts.Klystrons))
	for _, k := range opts.Klystrons {
		allowed[k] = true
	}

	out := make([]*DataMap, 0, len(picked))
	for _, dm := range picked {
		if !dm.IsKlystron() {
			out = append(out, dm)
			continue
		}
		filtered := *dm
		filtered.Klystrons = nil
		for _, k := range dm.Klystrons {
			if allowed[k.Element] {
				filtered.Klystrons = append(filtered.Klystrons, k)
			}
		}
		if len(filtered.Klystrons) > 0 {
			out = append(out, &filtered)
		}
	}
	return out, nil
}
