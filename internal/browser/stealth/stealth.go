// Package stealth reduces the automation fingerprint of a browser tab by
// overriding the presented identity and injecting evasion JavaScript before
// any page script runs.
package stealth

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-mcp/api/schemas"
)

// EvasionsJS holds the embedded JavaScript used for browser fingerprint evasion.
//
//go:embed evasions.js
var EvasionsJS string

const personaPlaceholder = "__SPECTER_PERSONA__"

// ApplyEvasions configures the tab behind ctx to present the given persona.
// Must be called before the first navigation; the injected script only runs
// on documents created after it is registered.
func ApplyEvasions(ctx context.Context, persona schemas.Persona, logger *zap.Logger) error {
	script, err := BootstrapScript(persona)
	if err != nil {
		return fmt.Errorf("building evasion script: %w", err)
	}

	actions := []chromedp.Action{
		emulation.SetUserAgentOverride(persona.UserAgent).
			WithAcceptLanguage(strings.Join(persona.Languages, ",")).
			WithPlatform(persona.Platform),
		emulation.SetDeviceMetricsOverride(int64(persona.Width), int64(persona.Height), 1.0, false),
	}
	if persona.Timezone != "" {
		actions = append(actions, emulation.SetTimezoneOverride(persona.Timezone))
	}
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))

	if err := chromedp.Run(ctx, actions...); err != nil {
		return fmt.Errorf("applying persona overrides: %w", err)
	}

	if logger != nil {
		logger.Debug("Applied stealth configuration.",
			zap.String("user_agent", persona.UserAgent),
			zap.String("platform", persona.Platform),
		)
	}
	return nil
}

// BootstrapScript renders the evasion script with the persona data embedded.
func BootstrapScript(persona schemas.Persona) (string, error) {
	data, err := json.Marshal(prepareJSPersona(persona))
	if err != nil {
		return "", err
	}
	if !strings.Contains(EvasionsJS, personaPlaceholder) {
		return "", fmt.Errorf("evasion script is missing the %s placeholder", personaPlaceholder)
	}
	return strings.Replace(EvasionsJS, personaPlaceholder, string(data), 1), nil
}

func prepareJSPersona(persona schemas.Persona) map[string]interface{} {
	return map[string]interface{}{
		"userAgent":  persona.UserAgent,
		"platform":   persona.Platform,
		"languages":  persona.Languages,
		"timezoneId": persona.Timezone,
		"locale":     persona.Locale,
		"width":      persona.Width,
		"height":     persona.Height,
	}
}
