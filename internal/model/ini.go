package model

import (
	"bytes"
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// iniCodec lets viper read sectioned INI files. Keys before the first
// section land at the top level.
type iniCodec struct{}

func (iniCodec) Decode(b []byte, v map[string]any) error {
	f, err := ini.Load(b)
	if err != nil {
		return fmt.Errorf("parsing ini: %w", err)
	}

	for _, sec := range f.Sections() {
		target := v
		if sec.Name() != ini.DefaultSection {
			m := make(map[string]any, len(sec.Keys()))
			v[sec.Name()] = m
			target = m
		}
		for _, key := range sec.Keys() {
			target[key.Name()] = key.Value()
		}
	}
	return nil
}

func (iniCodec) Encode(v map[string]any) ([]byte, error) {
	f := ini.Empty()
	for name, val := range v {
		values, ok := val.(map[string]any)
		if !ok {
			if _, err := f.Section("").NewKey(name, cast.ToString(val)); err != nil {
				return nil, err
			}
			continue
		}

		sec, err := f.NewSection(name)
		if err != nil {
			return nil, err
		}
		for key, x := range values {
			if _, err := sec.NewKey(key, cast.ToString(x)); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// newConfigViper returns a viper instance that also understands INI.
func newConfigViper() (*viper.Viper, error) {
	codecs := viper.NewCodecRegistry()
	if err := codecs.RegisterCodec("ini", iniCodec{}); err != nil {
		return nil, err
	}
	return viper.NewWithOptions(viper.WithCodecRegistry(codecs)), nil
}
