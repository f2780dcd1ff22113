package context

import (
	"github.com/flanksource/gomplate/v3"
)

// RunTemplate renders t against env, wrapping failures with the template and environment.
func (k Context) RunTemplate(t gomplate.Template, env map[string]any) (string, error) {
	val, err := gomplate.RunTemplateContext(k.Context, env, t)
	if err != nil {
		return "", k.Oops().With("template", t.String(), "environment", env).Wrap(err)
	}
	return val, nil
}
