package callback

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

const pageTemplate = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>%s</title>
<style>body{font-family:system-ui,sans-serif;max-width:32rem;margin:4rem auto;padding:0 1rem;color:#202124}h1{font-size:1.4rem}p{color:#5f6368}</style>
</head>
<body><h1>%s</h1><p>%s</p></body>
</html>`

func page(title, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t := templ.EscapeString(title)
		_, err := io.WriteString(w, fmt.Sprintf(pageTemplate, t, t, templ.EscapeString(message)))
		return err
	})
}

func successPage() templ.Component {
	return page("Signed in", "Authentication complete. You can close this window and return to the application.")
}

func failurePage(reason string) templ.Component {
	return page("Sign-in failed", reason)
}

func rejectedPage() templ.Component {
	return page("Unexpected request", "This sign-in link does not match an active request. Start the sign-in again from the application.")
}
