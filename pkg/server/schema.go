package server

import (
	"github.com/invopop/jsonschema"
)

// requestSchemas documents the request bodies accepted by the POST routes.
func requestSchemas() map[string]*jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
	}
	return map[string]*jsonschema.Schema{
		"generate":        r.Reflect(&GenerateRequest{}),
		"switch-provider": r.Reflect(&SwitchProviderRequest{}),
		"switch-mode":     r.Reflect(&SwitchModeRequest{}),
		"parameters":      r.Reflect(&SetParameterRequest{}),
	}
}
