package api

import (
	_ "embed"
	"encoding/json"
	"net/http"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openapiYAML []byte

// SpecAsJSON returns the embedded OpenAPI document converted to JSON.
func SpecAsJSON() ([]byte, error) {
	var spec interface{}
	if err := yaml.Unmarshal(openapiYAML, &spec); err != nil {
		return nil, err
	}
	return json.Marshal(spec)
}

// SwaggerHandler serves the OpenAPI document, as YAML when the client asks
// for it and as JSON otherwise.
func SwaggerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") == "application/yaml" {
			w.Header().Set("Content-Type", "application/yaml")
			w.Write(openapiYAML)
			return
		}

		jsonSpec, err := SpecAsJSON()
		if err != nil {
			Error(w, http.StatusInternalServerError, "failed to render API document")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonSpec)
	}
}
