// Package assemble builds the final bilingual export package from a terminal
// context and the visited path. Assembly is deterministic: the same terminal
// context and path always produce a byte-identical package.
package assemble

import (
	"fmt"
	"sort"
	"strings"

	"github.com/magicprompt/loom/pkg/domain"
)

// Reserved fields that carry the final prompt bodies rather than labeled
// attributes.
const (
	FieldPromptRU = "prompt_ru"
	FieldPromptEN = "prompt_en"
)

// rule maps a context field to its label in each rendering. Rules are a
// fixed, ordered table: rendering walks the table, not the context map, so
// output order never depends on map iteration.
type rule struct {
	Field string
	RU    string
	EN    string
}

var rules = []rule{
	{"concept", "Концепция", "Concept"},
	{"audience", "Аудитория", "Audience"},
	{"goal", "Цель", "Goal"},
	{"genre", "Жанр", "Genre"},
	{"mood", "Настроение", "Mood"},
	{"key_elements", "Ключевые элементы", "Key elements"},
	{"visual_style", "Визуальный стиль", "Visual style"},
	{"color_palette", "Цветовая палитра", "Color palette"},
	{"inspiration", "Источники вдохновения", "Inspiration"},
	{"camera", "Камера", "Camera"},
	{"lens", "Объектив", "Lens"},
	{"lighting", "Освещение", "Lighting"},
	{"brand_name", "Название бренда", "Brand name"},
	{"brand_values", "Ценности бренда", "Brand values"},
	{"logo_style", "Стиль логотипа", "Logo style"},
	{"character_name", "Имя персонажа", "Character name"},
	{"appearance", "Внешность", "Appearance"},
	{"personality", "Характер", "Personality"},
	{"environment_type", "Тип окружения", "Environment type"},
	{"time_of_day", "Время суток", "Time of day"},
	{"weather", "Погода", "Weather"},
	{"screen_type", "Тип экрана", "Screen type"},
	{"layout", "Макет", "Layout"},
	{"components", "Компоненты", "Components"},
}

// Meta carries the metadata stamped onto the package.
type Meta struct {
	SessionID    string
	GraphVersion string
	Presets      []string
}

// Assemble renders the export package from the terminal context snapshot and
// the visited path. Fields absent from the terminal context are simply
// omitted, never an error: branching may legitimately skip whole layers.
// CreatedAt comes from the last path record so assembling twice yields a
// byte-identical package.
func Assemble(terminal map[string]string, path []domain.StepRecord, meta Meta) (*domain.ExportPackage, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("cannot assemble an empty path")
	}

	fields := make(map[string]string, len(terminal))
	for k, v := range terminal {
		fields[k] = v
	}

	pkg := &domain.ExportPackage{
		SessionID:    meta.SessionID,
		RU:           render(terminal, FieldPromptRU, func(r rule) string { return r.RU }),
		EN:           render(terminal, FieldPromptEN, func(r rule) string { return r.EN }),
		GraphVersion: meta.GraphVersion,
		Presets:      append([]string(nil), meta.Presets...),
		Fields:       fields,
		CreatedAt:    path[len(path)-1].Timestamp,
	}
	return pkg, nil
}

func render(terminal map[string]string, bodyField string, label func(rule) string) string {
	var b strings.Builder

	if body, ok := terminal[bodyField]; ok {
		b.WriteString(strings.TrimSpace(body))
		b.WriteString("\n")
	}

	covered := map[string]bool{FieldPromptRU: true, FieldPromptEN: true}
	var lines []string
	for _, r := range rules {
		covered[r.Field] = true
		if v, ok := terminal[r.Field]; ok {
			lines = append(lines, label(r)+": "+v)
		}
	}

	// Fields outside the rule table still make it into the rendering, under
	// their raw names, sorted for determinism.
	var extra []string
	for k := range terminal {
		if !covered[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		lines = append(lines, k+": "+terminal[k])
	}

	if len(lines) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}
