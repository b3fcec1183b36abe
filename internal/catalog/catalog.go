// Package catalog holds the named bundles of artifacts that can be installed.
//
// Entries carry a LocalPath relative to the model directory; Resolve joins
// them onto a concrete directory.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maxedout/modelfetch/internal/artifact"
	"github.com/pelletier/go-toml/v2"
)

var (
	// ErrNotFound is returned for unknown bundles and artifacts.
	ErrNotFound = errors.New("not found in catalog")
	// ErrSectionHeader is returned when a picker header is used as an artifact name.
	ErrSectionHeader = errors.New("section header is not an artifact")
)

// Picker section headers returned by UNETChoices.
const (
	HeaderFP8  = "--- FP8 ---"
	HeaderFP16 = "--- FP16 ---"
)

const unetDir = "diffusion_models/"

// Catalog maps bundle names to artifact lists.
type Catalog struct {
	bundles map[string][]artifact.Descriptor
}

// Builtin returns the bundled catalog. includeSchnell adds the Schnell fp8
// UNET to the "all" and "all_fp8" bundles.
func Builtin(includeSchnell bool) *Catalog {
	return &Catalog{bundles: builtinBundles(includeSchnell)}
}

// file is the on-disk catalog layout:
//
//	[[bundles.mine]]
//	remote = "Flux1/vae/ae.safetensors"
//	local  = "vae/ae.safetensors"
//	sha256 = "..."
type file struct {
	Bundles map[string][]artifact.Descriptor `toml:"bundles"`
}

// LoadFile reads a TOML catalog and merges it over c. A bundle defined in the
// file replaces the built-in bundle of the same name.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	return c.Merge(data)
}

// Merge decodes a TOML catalog document and merges it over c.
func (c *Catalog) Merge(data []byte) error {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to decode catalog: %w", err)
	}

	for name, list := range f.Bundles {
		if len(list) == 0 {
			return fmt.Errorf("bundle %q is empty", name)
		}

		for _, d := range list {
			if err := d.Validate(); err != nil {
				return fmt.Errorf("bundle %q: %w", name, err)
			}

			if filepath.IsAbs(d.LocalPath) {
				return fmt.Errorf("bundle %q: local path %q must be relative", name, d.LocalPath)
			}
		}

		c.bundles[name] = list
	}

	return nil
}

// Names lists the bundle names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.bundles))
	for name := range c.bundles {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Bundle returns the artifacts of a bundle with duplicate local paths dropped,
// keeping the first occurrence.
func (c *Catalog) Bundle(name string) ([]artifact.Descriptor, error) {
	list, ok := c.bundles[name]
	if !ok {
		return nil, fmt.Errorf("bundle %q: %w", name, ErrNotFound)
	}

	seen := make(map[string]struct{}, len(list))
	out := make([]artifact.Descriptor, 0, len(list))

	for _, d := range list {
		if _, dup := seen[d.LocalPath]; dup {
			continue
		}

		seen[d.LocalPath] = struct{}{}
		out = append(out, d)
	}

	return out, nil
}

// Resolve returns the bundle with every LocalPath placed under modelDir.
func (c *Catalog) Resolve(name, modelDir string) ([]artifact.Descriptor, error) {
	list, err := c.Bundle(name)
	if err != nil {
		return nil, err
	}

	for i := range list {
		list[i] = Under(list[i], modelDir)
	}

	return list, nil
}

// Under places d's relative LocalPath under modelDir.
func Under(d artifact.Descriptor, modelDir string) artifact.Descriptor {
	d.LocalPath = filepath.Join(modelDir, filepath.FromSlash(d.LocalPath))

	return d
}

// Lookup finds an artifact by file name across all bundles.
func (c *Catalog) Lookup(name string) (artifact.Descriptor, error) {
	if name == HeaderFP8 || name == HeaderFP16 {
		return artifact.Descriptor{}, fmt.Errorf("%q: %w", name, ErrSectionHeader)
	}

	for _, bundle := range c.Names() {
		for _, d := range c.bundles[bundle] {
			if d.Name() == name {
				return d, nil
			}
		}
	}

	return artifact.Descriptor{}, fmt.Errorf("artifact %q: %w", name, ErrNotFound)
}

// Choice is one row of the UNET picker. Header rows carry no descriptor.
type Choice struct {
	Label      string
	Header     bool
	Descriptor artifact.Descriptor
}

// UNETChoices groups the diffusion models of the "all" bundle into an FP8
// section and an FP16 section, each sorted by name.
func (c *Catalog) UNETChoices() []Choice {
	list, err := c.Bundle("all")
	if err != nil {
		return nil
	}

	var fp8, fp16 []artifact.Descriptor

	for _, d := range list {
		if !strings.HasPrefix(d.LocalPath, unetDir) {
			continue
		}

		switch name := d.Name(); {
		case strings.Contains(name, "-fp8"):
			fp8 = append(fp8, d)
		case strings.Contains(name, "-fp16"):
			fp16 = append(fp16, d)
		}
	}

	var choices []Choice

	for _, section := range []struct {
		header string
		list   []artifact.Descriptor
	}{{HeaderFP8, fp8}, {HeaderFP16, fp16}} {
		if len(section.list) == 0 {
			continue
		}

		sort.Slice(section.list, func(i, j int) bool { return section.list[i].Name() < section.list[j].Name() })

		choices = append(choices, Choice{Label: section.header, Header: true})
		for _, d := range section.list {
			choices = append(choices, Choice{Label: d.Name(), Descriptor: d})
		}
	}

	return choices
}
