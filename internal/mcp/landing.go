package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>PDF RAG MCP Server</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #f8fafc; color: #0f172a; margin: 0; display: flex; justify-content: center; }
  main { max-width: 640px; width: 90%; padding: 3rem 0; }
  h1 { font-size: 1.6rem; margin: 0 0 0.5rem; }
  p { color: #475569; line-height: 1.5; }
  table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
  td { padding: 0.4rem 0.5rem; border-bottom: 1px solid #e2e8f0; vertical-align: top; }
  code { font-family: "SF Mono", Menlo, monospace; font-size: 0.9rem; color: #4338ca; }
</style>
</head>
<body>
<main>
  <h1>PDF RAG MCP Server</h1>
  <p>Upload PDFs, index their text and ask questions answered only from their content, over the Model Context Protocol.</p>

  <table>
    <tr><td><code>/mcp</code></td><td>MCP Streamable HTTP endpoint</td></tr>
    <tr><td><code>/health</code></td><td>Vector backend health check</td></tr>
  </table>

  <table>
    <tr><td><code>ingest_pdf</code></td><td>Extract, chunk and index a PDF</td></tr>
    <tr><td><code>ask_documents</code></td><td>Answer a question from ready documents</td></tr>
    <tr><td><code>list_documents</code></td><td>List documents and their status</td></tr>
    <tr><td><code>delete_document</code></td><td>Remove a document and its chunks</td></tr>
    <tr><td><code>get_index_status</code></td><td>Counts and backend connectivity</td></tr>
  </table>
</main>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landingHTML))
	}
}
