// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package api

import (
	_ "embed"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// Paths of the interactive API documentation and the OpenAPI document.
const (
	DocsPath    = "/api/docs"
	OpenAPIPath = "/api/openapi.json"
)

//go:embed openapi.json
var openAPIDoc []byte

// OpenAPIDocument returns the embedded OpenAPI document with its server
// URL set to apiPrefix.
func OpenAPIDocument(apiPrefix string) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(openAPIDoc, &doc); err != nil {
		return nil, fmt.Errorf("decode openapi document: %w", err)
	}
	doc["servers"] = []map[string]string{{"url": apiPrefix}}
	return json.Marshal(doc)
}

// mountDocs serves the OpenAPI document and a Swagger UI reading it.
func mountDocs(r chi.Router, apiPrefix string) error {
	doc, err := OpenAPIDocument(apiPrefix)
	if err != nil {
		return err
	}

	r.Get(OpenAPIPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(doc)
	})
	r.Get(DocsPath, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, DocsPath+"/index.html", http.StatusMovedPermanently)
	})
	r.Get(DocsPath+"/*", httpSwagger.Handler(
		httpSwagger.URL(OpenAPIPath),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))
	return nil
}
