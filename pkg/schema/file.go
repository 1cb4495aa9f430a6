package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/pql/pkg/errors"
)

// schemaDocument is the YAML layout of an external schema file:
//
//	fields:
//	  - name: id
//	    type: int64
//	  - name: name
//	    type: string
//	    nullable: true
type schemaDocument struct {
	Fields []Field `yaml:"fields"`
}

// LoadSchema reads a YAML schema file.
func LoadSchema(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrorTypeInputNotFound, fmt.Sprintf("schema file %s", path))
		}
		return nil, errors.Wrap(err, errors.ErrorTypeIO, fmt.Sprintf("opening schema file %s", path))
	}
	defer f.Close()
	return DecodeSchema(f)
}

// DecodeSchema parses a YAML schema document from r.
func DecodeSchema(r io.Reader) (*Schema, error) {
	var doc schemaDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "parsing schema")
	}
	if len(doc.Fields) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "schema has no fields")
	}
	return NewSchema(doc.Fields)
}

// EncodeSchema writes s as a YAML schema document.
func EncodeSchema(w io.Writer, s *Schema) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(schemaDocument{Fields: s.Fields()}); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return enc.Close()
}
