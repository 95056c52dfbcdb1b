package firmware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrFileNotFound is returned when no usable firmware image is available.
var ErrFileNotFound = errors.New("firmware file not found")

// DefaultExtension is the file extension DirProvider looks for.
const DefaultExtension = ".bin"

// Provider supplies firmware images to the programmer.
type Provider interface {
	Load() (*Image, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func() (*Image, error)

// Load calls f.
func (f ProviderFunc) Load() (*Image, error) {
	return f()
}

// Bytes returns a Provider serving data from memory.
func Bytes(data []byte, name string) Provider {
	return ProviderFunc(func() (*Image, error) {
		return NewImage(data, name)
	})
}

// FileProvider loads a single firmware file.
type FileProvider struct {
	Path string
}

// Load reads the file and wraps it in a fresh Image.
func (p FileProvider) Load() (*Image, error) {
	return Load(p.Path)
}

// DirProvider loads the first file with the given extension found in Dir,
// in lexical order.
type DirProvider struct {
	Dir string

	// Ext defaults to DefaultExtension
	Ext string
}

// Load picks the first matching file and loads it.
func (p DirProvider) Load() (*Image, error) {
	path, err := p.Find()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Find returns the path of the file Load would use.
func (p DirProvider) Find() (string, error) {
	ext := p.Ext
	if ext == "" {
		ext = DefaultExtension
	}

	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("no %s file in %s: %w", ext, p.Dir, ErrFileNotFound)
		}
		return "", fmt.Errorf("failed to read directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ext) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no %s file in %s: %w", ext, p.Dir, ErrFileNotFound)
	}

	sort.Strings(names)
	return filepath.Join(p.Dir, names[0]), nil
}

// Load reads a flat binary image from path.
//
// Example:
//
//	img, err := firmware.Load("blinky.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d bytes at 0x%08X\n", img.Length, img.StartAddress)
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return NewImage(data, path)
}
