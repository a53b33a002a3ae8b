package variables

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// FileVersion is the current version of the variable file format.
const FileVersion = 1

type file struct {
	Version int               `yaml:"version"`
	SavedAt time.Time         `yaml:"saved_at,omitempty"`
	Inputs  []*InputVariable  `yaml:"input_variables"`
	Outputs []*OutputVariable `yaml:"output_variables"`
}

// Load reads a variable file.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	set, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Decode reads variables in the file format from r.
func Decode(r io.Reader) (*Set, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc.Version > FileVersion {
		return nil, fmt.Errorf("%w: file version %d is newer than %d", ErrInvalidVariable, doc.Version, FileVersion)
	}
	set := &Set{Inputs: doc.Inputs, Outputs: doc.Outputs}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Encode writes set in the file format to w. Inputs are sorted by name.
func Encode(w io.Writer, set *Set) error {
	inputs := append([]*InputVariable{}, set.Inputs...)
	sort.SliceStable(inputs, func(i, j int) bool { return inputs[i].Name < inputs[j].Name })

	doc := file{
		Version: FileVersion,
		Inputs:  inputs,
		Outputs: set.Outputs,
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

// Save writes set to path, creating the parent directory if needed.
func Save(path string, set *Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, set); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// LoadPVData reads a JSON PV snapshot. Values are normalized to PV value
// shapes: whole numbers stay float64, lists become []float64 or []string.
func LoadPVData(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := make(map[string]any, len(raw))
	for name, v := range raw {
		out[name] = normalizeJSON(v)
	}
	return out, nil
}

// SavePVData writes a JSON PV snapshot with sorted keys.
func SavePVData(path string, pvdata map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(pvdata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func normalizeJSON(v any) any {
	items, ok := v.([]any)
	if !ok {
		return v
	}
	nums := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := item.(float64)
		if !ok {
			strs := make([]string, 0, len(items))
			for _, item := range items {
				s, ok := item.(string)
				if !ok {
					return items
				}
				strs = append(strs, s)
			}
			return strs
		}
		nums = append(nums, f)
	}
	return nums
}
