package native

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the file that marks a directory under the native root as
// a package.
const ManifestFile = "package.yml"

const (
	TransportInProc = "inproc"
	TransportGRPC   = "grpc"
)

type Manifest struct {
	Name      string        `yaml:"name"`
	Version   string        `yaml:"version"`
	Transport string        `yaml:"transport"` // inproc | grpc
	Entry     string        `yaml:"entry"`     // registered implementation, defaults to name
	Address   string        `yaml:"address"`   // grpc only
	Timeout   time.Duration `yaml:"timeout"`   // per call, grpc only
}

func ReadManifest(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("native: parse %s: %w", filepath.Join(dir, ManifestFile), err)
	}
	m.applyDefaults(filepath.Base(dir))
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("native: %s: %w", filepath.Join(dir, ManifestFile), err)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults(dirName string) {
	if m.Name == "" {
		m.Name = dirName
	}
	if m.Transport == "" {
		m.Transport = TransportInProc
	}
	if m.Entry == "" {
		m.Entry = m.Name
	}
}

func (m *Manifest) validate() error {
	switch m.Transport {
	case TransportInProc:
	case TransportGRPC:
		if m.Address == "" {
			return fmt.Errorf("transport grpc needs an address")
		}
	default:
		return fmt.Errorf("unknown transport %q", m.Transport)
	}
	if m.Timeout < 0 {
		return fmt.Errorf("negative timeout %s", m.Timeout)
	}
	return nil
}
