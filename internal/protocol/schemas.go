package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce   sync.Once
	schemasErr    error
	helloSchema   *jsonschema.Schema
	welcomeSchema *jsonschema.Schema
)

func loadSchemas() error {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		c.AssertFormat = true
		for _, name := range []string{"hello.schema.json", "welcome.schema.json"} {
			raw, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource("https://voxels.dev/schemas/"+name, bytes.NewReader(raw)); err != nil {
				schemasErr = fmt.Errorf("schema %s: %w", name, err)
				return
			}
		}
		if helloSchema, schemasErr = c.Compile("https://voxels.dev/schemas/hello.schema.json"); schemasErr != nil {
			return
		}
		welcomeSchema, schemasErr = c.Compile("https://voxels.dev/schemas/welcome.schema.json")
	})
	return schemasErr
}

func validate(s func() *jsonschema.Schema, raw []byte) error {
	if err := loadSchemas(); err != nil {
		return err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := s().Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// ParseHello validates raw against the HELLO schema and decodes it.
func ParseHello(raw []byte) (HelloMsg, error) {
	var h HelloMsg
	if err := validate(func() *jsonschema.Schema { return helloSchema }, raw); err != nil {
		return h, err
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return h, nil
}

// ParseWelcome validates raw against the WELCOME schema and decodes it.
func ParseWelcome(raw []byte) (WelcomeMsg, error) {
	var w WelcomeMsg
	if err := validate(func() *jsonschema.Schema { return welcomeSchema }, raw); err != nil {
		return w, err
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return w, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w, nil
}

// CheckHello reports the error code for a HELLO this server must reject, or "" to accept it.
func CheckHello(h HelloMsg, version string, id uint64) string {
	if h.ProtocolID != id {
		return ErrProtoID
	}
	if h.ProtocolVersion != version {
		return ErrProtoVersion
	}
	return ""
}
