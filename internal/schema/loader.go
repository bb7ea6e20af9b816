package schema

import (
	"fmt"

	"github.com/spf13/viper"
)

// resourceDef mirrors one resource entry in a declaration file
type resourceDef struct {
	Type          string            `mapstructure:"type"`
	Table         string            `mapstructure:"table"`
	IDField       string            `mapstructure:"id_field"`
	ClientID      bool              `mapstructure:"client_id"`
	Attributes    []attributeDef    `mapstructure:"attributes"`
	Relationships []relationshipDef `mapstructure:"relationships"`
}

type attributeDef struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"`
	Nullable bool   `mapstructure:"nullable"`
}

type relationshipDef struct {
	Name       string `mapstructure:"name"`
	Kind       string `mapstructure:"kind"`
	Target     string `mapstructure:"target"`
	ForeignKey string `mapstructure:"foreign_key"`
	JoinTable  string `mapstructure:"join_table"`
	LocalKey   string `mapstructure:"local_key"`
	TargetKey  string `mapstructure:"target_key"`
	Nullable   bool   `mapstructure:"nullable"`
}

// LoadFile builds a registry from a YAML resource declaration file.
// The file holds a top-level `resources` list; see testdata for the shape.
func LoadFile(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read resource file: %w", err)
	}

	var defs []resourceDef
	if err := v.UnmarshalKey("resources", &defs); err != nil {
		return nil, fmt.Errorf("failed to parse resource file: %w", err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("resource file %s declares no resources", path)
	}

	registry := NewRegistry()
	for _, def := range defs {
		schema, err := buildFromDef(def)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(schema); err != nil {
			return nil, err
		}
	}

	if err := registry.ValidateAll(); err != nil {
		return nil, err
	}
	return registry, nil
}

func buildFromDef(def resourceDef) (*ResourceSchema, error) {
	b := NewResource(def.Type, def.Table)
	if def.IDField != "" {
		b.IDField(def.IDField)
	}
	if def.ClientID {
		b.ClientID()
	}

	for _, attr := range def.Attributes {
		t, err := ParseFieldType(attr.Type)
		if err != nil {
			return nil, fmt.Errorf("resource %s, attribute %s: %w", def.Type, attr.Name, err)
		}
		if attr.Nullable {
			b.NullableAttr(attr.Name, t)
		} else {
			b.Attr(attr.Name, t)
		}
	}

	for _, rel := range def.Relationships {
		switch rel.Kind {
		case "to-one":
			if rel.Nullable {
				b.NullableToOne(rel.Name, rel.Target, rel.ForeignKey)
			} else {
				b.ToOne(rel.Name, rel.Target, rel.ForeignKey)
			}
		case "to-many":
			if rel.JoinTable != "" {
				b.ManyToMany(rel.Name, rel.Target, rel.JoinTable, rel.LocalKey, rel.TargetKey)
			} else {
				b.ToMany(rel.Name, rel.Target, rel.ForeignKey)
			}
		default:
			return nil, fmt.Errorf("resource %s, relationship %s: unknown kind %q", def.Type, rel.Name, rel.Kind)
		}
	}

	return b.Build()
}
