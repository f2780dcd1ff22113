package echo

import (
	"net/http"
	"strings"

	"github.com/flanksource/commons/properties"
	echov4 "github.com/labstack/echo/v4"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

type propertyRow struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Source  string `json:"source"`
	Type    string `json:"type,omitempty"`
	Default any    `json:"default,omitempty"`
}

// Properties lists the process and database properties; process values win.
func Properties(c echov4.Context) error {
	ctx := c.Request().Context().(context.Context)

	var dbProperties []models.AppProperty
	if err := ctx.DB().Find(&dbProperties).Error; err != nil {
		return writeError(c, ctx.Oops().Wrap(err))
	}

	supported := ctx.Properties().SupportedProperties()
	row := func(name, value, source string) propertyRow {
		r := propertyRow{Name: name, Value: value, Source: source}
		if prop, ok := supported[name]; ok {
			r.Type, r.Default = prop.Type, prop.Default
		}
		return r
	}

	seen := make(map[string]bool)
	output := make([]propertyRow, 0)
	for k, v := range properties.Global.GetAll() {
		output = append(output, row(k, v, "local"))
		seen[k] = true
	}

	for _, p := range dbProperties {
		if seen[p.Name] {
			continue
		}
		output = append(output, row(p.Name, p.Value, "db"))
		seen[p.Name] = true
	}

	for name, prop := range supported {
		if !seen[name] {
			output = append(output, propertyRow{Name: name, Source: "default", Type: prop.Type, Default: prop.Default})
		}
	}

	return c.JSON(http.StatusOK, output)
}

// UpdateProperty stores a property in the database, either from the name
// and value form fields or from a JSON object of name/value pairs.
func UpdateProperty(c echov4.Context) error {
	ctx := c.Request().Context().(context.Context)

	if strings.HasPrefix(c.Request().Header.Get(echov4.HeaderContentType), echov4.MIMEApplicationJSON) {
		var props map[string]string
		if err := bind(c, &props); err != nil {
			return writeError(c, err)
		}
		if err := context.UpdateProperties(ctx, props); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusOK)
	}

	name := c.Request().FormValue("name")
	value := c.Request().FormValue("value")
	if name == "" || value == "" {
		return writeError(c, api.Errorf(api.EINVALID, "property name or value is missing"))
	}
	if err := context.UpdateProperty(ctx, name, value); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}
