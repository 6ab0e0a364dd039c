package export

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/kingrea/hhmmkit/internal/model"
)

var summaryTemplate = template.Must(template.New("SUMMARY.md").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`# {{.Name}}
{{if .Description}}
{{.Description}}
{{end}}
{{.Summary}}

## States

| State | Name | Path |
|---|---|---|
{{- range .States}}
| {{.State}} | {{.Name}} | {{join .Path " / "}} |
{{- end}}

## Streams
{{range .Levels}}{{if .Streams}}
### {{.Name}}

| Stream | Family | Parameters | States |
|---|---|---|---|
{{- range .Streams}}
| {{.Name}} | {{.Family}} | {{join .Params ", "}} | {{len .States}} |
{{- end}}
{{end}}{{end}}
## Constraints

| Stream | Raw | Free | Columns |
|---|---|---|---|
{{- range .Constraints}}
| {{.Stream}} | {{len .Rows}} | {{len .Cols}} | {{join .Cols " "}} |
{{- end}}
`))

// Summary writes a markdown report of states, streams and free parameters.
func Summary(w io.Writer, spec *model.Spec) error {
	data := struct {
		model.Document
		Summary string
	}{spec.Document(), spec.Summary()}
	if err := summaryTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("export: render summary for %s: %w", spec.ID(), err)
	}
	return nil
}
