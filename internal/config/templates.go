package config

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// descriptionContext is the data a query description template is
// rendered against.
type descriptionContext struct {
	QueryID     string
	KeyField    string
	ContentType string
}

// renderDescription renders a query's description template with sprig
// functions available. Rendering happens once at load time; the result
// is what MCP clients see in listings. An empty description gets a
// generic one derived from the query ID.
func renderDescription(query QueryConfig) (string, error) {
	if query.Description == "" {
		return fmt.Sprintf("Results of continuous query %s", query.QueryID), nil
	}

	tmpl, err := template.New(query.QueryID).Funcs(sprig.TxtFuncMap()).Parse(query.Description)
	if err != nil {
		return "", ValidationError{
			Field:   fmt.Sprintf("queries.%s.description", query.QueryID),
			Value:   query.Description,
			Message: fmt.Sprintf("invalid template: %v", err),
		}
	}

	var buf bytes.Buffer
	data := descriptionContext{
		QueryID:     query.QueryID,
		KeyField:    query.KeyField,
		ContentType: query.ResourceContentType,
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", ValidationError{
			Field:   fmt.Sprintf("queries.%s.description", query.QueryID),
			Value:   query.Description,
			Message: fmt.Sprintf("template execution failed: %v", err),
		}
	}
	return buf.String(), nil
}
