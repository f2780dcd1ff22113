package context

import (
	"fmt"
	"strconv"
	"time"

	"github.com/flanksource/commons/duration"
	"github.com/flanksource/commons/logger"
	"github.com/flanksource/commons/properties"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/patrickmn/go-cache"

	"github.com/flanksource/hse/models"
)

// Runtime tunables, overridable through the properties table or commons/properties.
const (
	PropertySequenceRetries    = "sequence.retries"
	PropertyEmailNotifications = "notifications.email"
	PropertyEventStream        = "notifications.stream"
	PropertyCAPADueSoon        = "capa.due_soon"
	PropertyCriticalEscalation = "incident.escalation.critical"
	PropertyEvidenceMaxSize    = "evidence.max_size"
	PropertyPublisherBuffer    = "notifications.publisher.buffer"
	PropertyReportWorkHours    = "reports.work_hours"
)

var supportedProperties = cmap.New[PropertyType]()

var propertyCache = cache.New(time.Minute*15, time.Minute*15)

type PropertyType struct {
	Key     string `json:"-"`
	Value   any    `json:"value,omitempty"`
	Default any    `json:"default,omitempty"`
	Type    string `json:"type,omitempty"`
}

func (k Context) ClearCache() {
	propertyCache.Flush()
}

func register(prop PropertyType) {
	if !supportedProperties.SetIfAbsent(prop.Key, prop) && prop.Value != nil {
		supportedProperties.Set(prop.Key, prop)
	}
}

type Properties map[string]string

// SupportedProperties lists every property that has been read so far, with its default.
func (p Properties) SupportedProperties() map[string]PropertyType {
	return supportedProperties.Items()
}

func (p Properties) lookup(key string) (string, bool) {
	// process-level overrides win over the properties table
	if v := properties.Get(key); v != "" {
		return v, true
	}
	v, ok := p[key]
	return v, ok
}

// On returns true if the property is true|enabled|on, or def when unset.
func (p Properties) On(def bool, key string) bool {
	prop := PropertyType{Type: "bool", Key: key, Default: def}
	defer func() { register(prop) }()

	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	on := v == "true" || v == "enabled" || v == "on"
	prop.Value = on
	return on
}

func (p Properties) Duration(key string, def time.Duration) time.Duration {
	prop := PropertyType{Type: "duration", Key: key, Default: def}
	defer func() { register(prop) }()

	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	d, err := duration.ParseDuration(v)
	if err != nil {
		logger.Warnf("property[%s] invalid duration %s", key, v)
		prop.Value = v
		return def
	}
	prop.Value = time.Duration(d)
	return time.Duration(d)
}

func (p Properties) Int(key string, def int) int {
	prop := PropertyType{Type: "int", Key: key, Default: def}
	defer func() { register(prop) }()

	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger.Warnf("property[%s] invalid int %s", key, v)
		prop.Value = v
		return def
	}
	prop.Value = i
	return i
}

func (p Properties) String(key string, def string) string {
	prop := PropertyType{Type: "string", Key: key, Default: def}
	defer func() { register(prop) }()

	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	prop.Value = v
	return v
}

// Properties returns the merged table and process properties, cached for 15 minutes.
func (k Context) Properties() Properties {
	if val, ok := propertyCache.Get("global"); ok {
		return val.(Properties)
	}

	props := make(Properties)
	if db := k.DB(); db != nil {
		var rows []models.AppProperty
		if err := db.Find(&rows).Error; err != nil {
			k.Warnf("failed to load properties: %v", err)
			return props
		}
		for _, prop := range rows {
			props[prop.Name] = prop.Value
		}
	}

	for key, v := range properties.Global.GetAll() {
		props[key] = v
	}

	propertyCache.SetDefault("global", props)
	return props
}

func UpdateProperty(ctx Context, key, value string) error {
	ctx.Debugf("updated property %s = %s", key, value)
	return UpdateProperties(ctx, map[string]string{key: value})
}

func UpdateProperties(ctx Context, props map[string]string) error {
	if len(props) == 0 {
		return nil
	}

	defer ctx.ClearCache()
	var rows []models.AppProperty
	for key, value := range props {
		rows = append(rows, models.AppProperty{Name: key, Value: value, UpdatedAt: ctx.Now()})
	}
	if err := models.SetProperties(ctx.DB(), rows); err != nil {
		return fmt.Errorf("failed to update %d properties: %w", len(rows), err)
	}
	return nil
}
