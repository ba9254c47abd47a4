package cli

import (
	"bytes"
	"encoding/json"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iudanet/gophsync/internal/crdt"
	"github.com/iudanet/gophsync/internal/models"
)

const recordTemplate = `
=== Record {{.ID}} ===

Type:     {{.Type}}
Kind:     {{.Kind}}
Version:  {{.Version}}
Replica:  {{.ReplicaID}}
Updated:  {{ago .UpdatedAt}}
Status:   {{state .}}
{{- if eq .Kind "counter" }}
Value:    {{value .}}
{{- else if .Payload }}

Payload:
{{payload .Payload}}
{{- end }}
`

const recordListTemplate = `
=== Records ===
{{- if eq (len .) 0 }}

No records found.

Use 'gophsync put --type <type> --data <json>' to add your first record.
{{- else }}

Found {{len .}} record(s):
{{- range . }}

- {{ .ID }} ({{ .Type }})
   Version: {{ .Version }}
   Updated: {{ ago .UpdatedAt }}
   Status:  {{ state . }}
   {{- if eq .Kind "counter" }}
   Value:   {{ value . }}
   {{- end }}
{{- end }}
{{- end }}
`

const statusTemplate = `
=== Sync Status ===

State:       {{.State}}
Network:     {{if .Online}}online{{else}}offline{{end}}
Last sync:   {{if .LastSyncAt}}{{ago .LastSyncAt}}{{else}}never{{end}}
Checkpoint:  {{if .Checkpoint}}{{.Checkpoint}}{{else}}-{{end}}
Dirty:       {{.Dirty}}
Pending:     {{.Pending}}
Quarantined: {{.Quarantined}}
{{- if .LastError }}

Last error:  {{.LastError}}
{{- end }}
{{- if .Quarantined }}

⚠️  Some changes were rejected. Run 'gophsync quarantine list' to inspect them.
{{- else if .Pending }}

Run 'gophsync sync' to push pending changes.
{{- else }}

✓ All data synchronized with server
{{- end }}
`

const queueTemplate = `
=== {{.Title}} ===
{{- if eq (len .Entries) 0 }}

{{.Empty}}
{{- else }}
{{- range .Entries }}

- {{ .RecordID }} v{{ .Version }}
   Attempts: {{ .Attempts }}
   {{- if .QuarantinedAt }}
   Quarantined: {{ agoPtr .QuarantinedAt }}
   {{- else }}
   Next attempt: {{ due .NextAttemptAt }}
   {{- end }}
   {{- if .LastError }}
   Error: {{ .LastError }}
   {{- end }}
{{- end }}
{{- end }}
`

type queueView struct {
	Title   string
	Empty   string
	Entries []*models.QueueEntry
}

// render executes tmpl into the command output
func (c *Cli) render(name, tmpl string, data any) error {
	t, err := template.New(name).Funcs(c.funcs()).Parse(tmpl)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return err
	}
	_, err = c.io.Write(buf.Bytes())
	return err
}

func (c *Cli) funcs() template.FuncMap {
	return template.FuncMap{
		"ago": c.ago,
		"agoPtr": func(ms *int64) string {
			if ms == nil {
				return "-"
			}
			return c.ago(*ms)
		},
		"due": func(ms int64) string {
			if ms <= c.now().UnixMilli() {
				return "now"
			}
			return c.ago(ms)
		},
		"state":   recordState,
		"value":   counterValue,
		"payload": indentPayload,
	}
}

// ago formats a millisecond timestamp relative to now
func (c *Cli) ago(ms int64) string {
	return humanize.RelTime(time.UnixMilli(ms), c.now(), "ago", "from now")
}

func recordState(rec *models.Record) string {
	switch {
	case rec.IsDeleted():
		return "deleted"
	case rec.Dirty:
		return "dirty"
	default:
		return "synced"
	}
}

func counterValue(rec *models.Record) (int64, error) {
	c, err := crdt.ParsePNCounter(rec.Payload)
	if err != nil {
		return 0, err
	}
	return c.Value(), nil
}

func indentPayload(payload json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		return string(payload)
	}
	return buf.String()
}
