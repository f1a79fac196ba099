package ui

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
)

// Template functions available in all templates.
var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"formatTimePtr": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"stateColor": func(state string) string {
		switch strings.ToUpper(state) {
		case "RUNNING", "DRAINING":
			return "blue"
		case "COMPLETED", "TERMINATED":
			return "green"
		case "FAILED":
			return "red"
		case "INTERRUPTED":
			return "yellow"
		default:
			return "gray"
		}
	},
	"dict": func(pairs ...any) (map[string]any, error) {
		if len(pairs)%2 != 0 {
			return nil, fmt.Errorf("dict: odd number of arguments")
		}
		m := make(map[string]any, len(pairs)/2)
		for i := 0; i < len(pairs); i += 2 {
			key, ok := pairs[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
			}
			m[key] = pairs[i+1]
		}
		return m, nil
	},
	"flag": func(b bool) int {
		if b {
			return 1
		}
		return 0
	},
}

// renderTemplate renders a page inside the layout.
func renderTemplate(w io.Writer, name string, data map[string]any) error {
	content, ok := templates[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}
	tmpl, err := parseWithComponents(templates["layout"])
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}
	if _, err := tmpl.New("content").Parse(content); err != nil {
		return fmt.Errorf("parse content: %w", err)
	}
	return tmpl.Execute(w, data)
}

// renderComponent renders a shared component on its own.
func renderComponent(w io.Writer, name string, data map[string]any) error {
	if _, ok := templates["components/"+name]; !ok {
		return fmt.Errorf("component not found: %s", name)
	}
	tmpl, err := parseWithComponents(`{{template "` + name + `" .}}`)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, data)
}

func parseWithComponents(root string) (*template.Template, error) {
	tmpl, err := template.New("root").Funcs(templateFuncs).Parse(root)
	if err != nil {
		return nil, err
	}
	for name, content := range templates {
		if strings.HasPrefix(name, "components/") {
			if _, err := tmpl.New(name).Parse(content); err != nil {
				return nil, fmt.Errorf("parse component %s: %w", name, err)
			}
		}
	}
	return tmpl, nil
}

var templates = map[string]string{
	"layout": `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <script src="https://unpkg.com/htmx.org@1.9.10"></script>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-50 min-h-screen">
    <nav class="bg-white shadow-sm border-b">
        <div class="max-w-7xl mx-auto px-4 sm:px-6 lg:px-8">
            <div class="flex h-16">
                <a href="/ui/" class="flex items-center px-2 py-2 text-xl font-bold text-indigo-600">oss</a>
            </div>
        </div>
    </nav>
    <main class="max-w-7xl mx-auto py-6 sm:px-6 lg:px-8">
        {{template "content" .}}
    </main>
</body>
</html>`,

	"components/table": `{{define "table"}}
<div id="process-table" class="bg-white shadow rounded-lg p-4">
{{with .Table}}
    <p class="text-sm text-gray-600 mb-2">
        OSS PID {{.CoordinatorID}} &middot; clock {{.Clock}} &middot;
        <span class="text-{{stateColor (print .State)}}-700">{{.State}}</span> &middot;
        {{.OccupiedCount}} occupied, {{.Launched}} launched
    </p>
    <table class="min-w-full text-sm font-mono">
        <thead><tr class="text-left text-gray-500">
            <th class="px-2">Entry</th><th class="px-2">Occupied</th><th class="px-2">PID</th><th class="px-2">StartS</th><th class="px-2">StartN</th>
        </tr></thead>
        <tbody>
        {{range .Rows}}
            <tr><td class="px-2">{{.Index}}</td><td class="px-2">{{flag .Occupied}}</td><td class="px-2">{{.TaskID}}</td><td class="px-2">{{.StartSeconds}}</td><td class="px-2">{{.StartNanos}}</td></tr>
        {{end}}
        </tbody>
    </table>
{{else}}
    <p class="text-sm text-gray-500">No run is attached.</p>
{{end}}
</div>
{{end}}`,

	"dashboard": `{{define "content"}}
<div class="px-4 py-6 sm:px-0">
    <div class="mb-8">
        <h1 class="text-2xl font-semibold text-gray-900">Process Table</h1>
        <p class="mt-1 text-sm text-gray-500">Up {{.Uptime}}</p>
    </div>
    <div hx-get="/ui/table" hx-trigger="every 1s" hx-swap="innerHTML">
        {{template "table" .}}
    </div>

    {{if .HasStore}}
    <h2 class="mt-8 mb-4 text-lg font-medium text-gray-900">Recent Runs ({{.RunCount}})</h2>
    <table class="min-w-full text-sm bg-white shadow rounded-lg">
        <thead><tr class="text-left text-gray-500">
            <th class="px-4 py-2">ID</th><th class="px-4 py-2">State</th><th class="px-4 py-2">Mode</th><th class="px-4 py-2">Launched</th><th class="px-4 py-2">Final Clock</th><th class="px-4 py-2">Created</th>
        </tr></thead>
        <tbody>
        {{range .Runs}}
            <tr>
                <td class="px-4 py-2"><a class="text-indigo-600" href="/ui/runs/{{.ID}}">{{.ID}}</a></td>
                <td class="px-4 py-2 text-{{stateColor (print .State)}}-700">{{.State}}</td>
                <td class="px-4 py-2">{{.Mode}}</td>
                <td class="px-4 py-2">{{.Launched}}/{{.Total}}</td>
                <td class="px-4 py-2">{{.FinalClock}}</td>
                <td class="px-4 py-2">{{formatTime .CreatedAt}}</td>
            </tr>
        {{else}}
            <tr><td colspan="6" class="px-4 py-4 text-gray-500 text-center">No runs recorded</td></tr>
        {{end}}
        </tbody>
    </table>
    {{end}}
</div>
{{end}}`,

	"runs/detail": `{{define "content"}}
<div class="px-4 py-6 sm:px-0">
    {{with .Run}}
    <h1 class="text-2xl font-semibold text-gray-900">Run {{.ID}}</h1>
    <dl class="mt-4 grid grid-cols-2 gap-2 text-sm">
        <dt class="text-gray-500">State</dt><dd class="text-{{stateColor (print .State)}}-700">{{.State}}</dd>
        <dt class="text-gray-500">Mode</dt><dd>{{.Mode}}</dd>
        <dt class="text-gray-500">Options</dt><dd>-n {{.Total}} -s {{.Simultaneous}} -t {{.TimeLimit}} (seed {{.Seed}})</dd>
        <dt class="text-gray-500">Launched</dt><dd>{{.Launched}}</dd>
        <dt class="text-gray-500">Final clock</dt><dd>{{.FinalClock}}</dd>
        <dt class="text-gray-500">Started</dt><dd>{{formatTime .CreatedAt}}</dd>
        <dt class="text-gray-500">Finished</dt><dd>{{formatTimePtr .CompletedAt}}</dd>
        {{if .Error}}<dt class="text-gray-500">Error</dt><dd class="text-red-700">{{.Error}}</dd>{{end}}
    </dl>
    {{end}}

    <h2 class="mt-8 mb-4 text-lg font-medium text-gray-900">Events ({{len .Events}})</h2>
    <ul class="text-sm font-mono bg-white shadow rounded-lg p-4">
    {{range .Events}}
        <li>{{.Clock}} {{.Kind}} slot {{.Slot}} task {{.TaskID}}{{if .Detail}} ({{.Detail}}){{end}}</li>
    {{else}}
        <li class="text-gray-500">No events recorded</li>
    {{end}}
    </ul>

    <h2 class="mt-8 mb-4 text-lg font-medium text-gray-900">Snapshots ({{len .Snapshots}})</h2>
    {{range .Snapshots}}
    <div class="mb-4">{{template "table" (dict "Table" .)}}</div>
    {{end}}
</div>
{{end}}`,

	"error": `{{define "content"}}
<div class="px-4 py-6 sm:px-0">
    <h1 class="text-2xl font-semibold text-gray-900">{{.Title}}</h1>
    <p class="mt-2 text-sm text-gray-700">{{.Message}}</p>
    <a href="/ui/" class="mt-4 inline-block text-indigo-600">Back to dashboard</a>
</div>
{{end}}`,
}
