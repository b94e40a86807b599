// Copyright 2024 Canonical Ltd.
// See LICENSE file for licensing details.

// Package charmmeta reads the charm's metadata.yaml. The charm resolves
// its integration endpoint from the metadata instead of hard-coding it,
// so renaming the endpoint stays a metadata-only change.
package charmmeta

import (
	"io"
	"os"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/schema"
	goyaml "gopkg.in/yaml.v2"
)

// Relation scopes. A container-scoped relation places the subordinate
// unit next to the principal unit it relates to.
const (
	ScopeGlobal    = "global"
	ScopeContainer = "container"
)

// Relation represents a single relation endpoint defined in the charm
// metadata.yaml file.
type Relation struct {
	Name      string
	Interface string
	Optional  bool
	Limit     int
	Scope     string
}

// Meta represents the content of a charm's metadata.yaml file that this
// charm cares about.
type Meta struct {
	Name        string
	Summary     string
	Description string
	Subordinate bool
	Provides    map[string]Relation
	Requires    map[string]Relation
	Peers       map[string]Relation
}

// ReadMetaFile reads the metadata.yaml at the given path.
func ReadMetaFile(path string) (*Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer func() { _ = f.Close() }()
	meta, err := ReadMeta(f)
	if err != nil {
		return nil, errors.Annotatef(err, "reading %q", path)
	}
	return meta, nil
}

// ReadMeta reads the content of a metadata.yaml file and returns its
// representation.
func ReadMeta(r io.Reader) (*Meta, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	raw := make(map[interface{}]interface{})
	if err := goyaml.Unmarshal(data, raw); err != nil {
		return nil, errors.Trace(err)
	}
	v, err := charmSchema.Coerce(raw, nil)
	if err != nil {
		return nil, errors.Annotate(err, "metadata")
	}
	m := v.(map[string]interface{})
	meta := &Meta{
		Name:        m["name"].(string),
		Summary:     m["summary"].(string),
		Description: m["description"].(string),
		Subordinate: m["subordinate"].(bool),
		Provides:    parseRelations(m["provides"]),
		Requires:    parseRelations(m["requires"]),
		Peers:       parseRelations(m["peers"]),
	}
	if err := meta.check(); err != nil {
		return nil, errors.Trace(err)
	}
	return meta, nil
}

// ProviderByInterface returns the provides endpoint with the given
// interface name. Exactly one such endpoint must exist.
func (m *Meta) ProviderByInterface(iface string) (Relation, error) {
	names := set.NewStrings()
	for name, rel := range m.Provides {
		if rel.Interface == iface {
			names.Add(name)
		}
	}
	switch names.Size() {
	case 0:
		return Relation{}, errors.NotFoundf("provides endpoint with interface %q", iface)
	case 1:
		return m.Provides[names.Values()[0]], nil
	}
	return Relation{}, errors.Errorf(
		"ambiguous interface %q provided by endpoints %v", iface, names.SortedValues())
}

// check enforces the structural constraints that are not expressible in
// the schema. Subordinate charms must declare at least one
// container-scoped relation, or they could never be deployed.
func (m *Meta) check() error {
	if !m.Subordinate {
		return nil
	}
	for _, rels := range []map[string]Relation{m.Provides, m.Requires} {
		for _, rel := range rels {
			if rel.Scope == ScopeContainer {
				return nil
			}
		}
	}
	return errors.Errorf("subordinate charm %q lacks a container-scoped relation", m.Name)
}

func parseRelations(v interface{}) map[string]Relation {
	if v == nil {
		return nil
	}
	rels := make(map[string]Relation)
	for name, rel := range v.(map[string]interface{}) {
		relMap := rel.(map[string]interface{})
		r := Relation{
			Name:      name,
			Interface: relMap["interface"].(string),
			Optional:  relMap["optional"].(bool),
			Scope:     relMap["scope"].(string),
		}
		if limit, ok := relMap["limit"]; ok {
			r.Limit = int(limit.(int64))
		}
		rels[name] = r
	}
	return rels
}

// ifaceExpander coerces the shorthand form of a relation definition, a
// bare interface name, into the map form before applying ifaceSchema.
type ifaceExpander struct{}

func (e ifaceExpander) Coerce(v interface{}, path []string) (interface{}, error) {
	if s, ok := v.(string); ok {
		v = map[interface{}]interface{}{"interface": s}
	}
	return ifaceSchema.Coerce(v, path)
}

var ifaceSchema = schema.FieldMap(
	schema.Fields{
		"interface": schema.String(),
		"limit":     schema.Int(),
		"optional":  schema.Bool(),
		"scope":     schema.OneOf(schema.Const(ScopeGlobal), schema.Const(ScopeContainer)),
	},
	schema.Defaults{
		"limit":    schema.Omit,
		"optional": false,
		"scope":    ScopeGlobal,
	},
)

var charmSchema = schema.FieldMap(
	schema.Fields{
		"name":        schema.String(),
		"summary":     schema.String(),
		"description": schema.String(),
		"subordinate": schema.Bool(),
		"provides":    schema.StringMap(ifaceExpander{}),
		"requires":    schema.StringMap(ifaceExpander{}),
		"peers":       schema.StringMap(ifaceExpander{}),
	},
	schema.Defaults{
		"summary":     "",
		"description": "",
		"subordinate": false,
		"provides":    schema.Omit,
		"requires":    schema.Omit,
		"peers":       schema.Omit,
	},
)
