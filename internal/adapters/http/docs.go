package http

import (
	"context"
	"log/slog"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

// defaultOpenAPIPath is relative to the process working directory.
const defaultOpenAPIPath = "api/openapi.yaml"

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Car Park Finder API - Swagger UI</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
  <style>body{margin:0;background:#fafafa}</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/docs/openapi.json',
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [SwaggerUIBundle.presets.apis],
    });
  </script>
</body>
</html>`

// apiDocument is the OpenAPI description loaded once at startup.
type apiDocument struct {
	raw  []byte
	json []byte
}

// loadAPIDocument reads and validates the OpenAPI file. A broken document is
// logged and the docs routes answer 404 rather than failing the server.
func loadAPIDocument(path string) *apiDocument {
	if path == "" {
		path = defaultOpenAPIPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("openapi document unavailable", "path", path, "error", err)
		return nil
	}

	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		slog.Warn("openapi document unreadable", "path", path, "error", err)
		return nil
	}
	if err := doc.Validate(context.Background()); err != nil {
		slog.Warn("openapi document invalid", "path", path, "error", err)
		return nil
	}
	js, err := doc.MarshalJSON()
	if err != nil {
		slog.Warn("openapi document not encodable", "path", path, "error", err)
		return nil
	}
	return &apiDocument{raw: raw, json: js}
}

// SetupDocs registers Swagger UI at /docs and the OpenAPI document at
// /docs/openapi.yaml and /docs/openapi.json.
func SetupDocs(app *fiber.App, path string) {
	doc := loadAPIDocument(path)

	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(swaggerUIHTML)
	})

	serve := func(contentType string, body func(*apiDocument) []byte) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if doc == nil {
				return errNotFound(c, "api document not available")
			}
			c.Set(fiber.HeaderContentType, contentType)
			return c.Send(body(doc))
		}
	}
	app.Get("/docs/openapi.yaml", serve("application/yaml", func(d *apiDocument) []byte { return d.raw }))
	app.Get("/docs/openapi.json", serve(fiber.MIMEApplicationJSON, func(d *apiDocument) []byte { return d.json }))
}
