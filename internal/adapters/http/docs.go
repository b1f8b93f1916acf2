package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

// DefaultOpenAPIPath is where the API description lives relative to the working directory.
const DefaultOpenAPIPath = "api/openapi.yaml"

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>tripcore API docs</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: '/docs/openapi.json', dom_id: '#swagger-ui', deepLinking: true});
  </script>
</body>
</html>`

// apiDocument is the OpenAPI description loaded once at startup.
type apiDocument struct {
	yaml    []byte
	json    []byte
	version string
}

// loadAPIDocument reads and validates the document at path.
func loadAPIDocument(path string) (*apiDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, err
	}

	js, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return &apiDocument{yaml: data, json: js, version: doc.Info.Version}, nil
}

// SetupDocs registers Swagger UI at /docs and the OpenAPI document at
// /docs/openapi.yaml and /docs/openapi.json. An empty path falls back to
// DefaultOpenAPIPath. A missing or invalid document is logged and its routes
// answer 404.
func SetupDocs(app *fiber.App, path string) {
	if path == "" {
		path = DefaultOpenAPIPath
	}

	doc, err := loadAPIDocument(path)
	if err != nil {
		slog.Warn("api document unavailable", "path", path, "error", err)
	}

	serve := func(contentType string, body func(*apiDocument) []byte) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if doc == nil {
				return errNotFound(c, "api document not available")
			}
			c.Set(fiber.HeaderContentType, contentType)
			c.Set("X-API-Document-Version", doc.version)
			return c.Send(body(doc))
		}
	}

	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(swaggerUIHTML)
	})
	app.Get("/docs/openapi.yaml", serve("application/yaml", func(d *apiDocument) []byte { return d.yaml }))
	app.Get("/docs/openapi.json", serve(fiber.MIMEApplicationJSON, func(d *apiDocument) []byte { return d.json }))
}
