// File: internal/parser/parser.go
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
)

// Parser converts raw natural-language instructions into ordered action
// plans. Parsing is purely lexical and deterministic: the same input text
// always yields the same plan.
//
// Detectors run in a fixed priority order and the first match within a
// fragment wins. The bare "按" prefix is deliberately checked by the
// press-key detector (which only accepts known key names) before the
// generic press-target click pattern, so "按回车" is a key press while
// "按确定" is a click.
type Parser struct {
	logger *zap.Logger
}

// New creates a rule-based parser.
func New(logger *zap.Logger) *Parser {
	return &Parser{logger: logger.Named("parser")}
}

const (
	matchedConfidence  = 0.9
	inferredClickConf  = 0.6
	inferredTypeConf   = 0.7
	defaultScrollCount = 1
)

// Sequence words that follow a comma separator and are dropped along with it.
var thenWordRe = regexp.MustCompile(`^\s*(?:然后|接着|再|and\s+then|then)\s*`)

var coordinateRe = regexp.MustCompile(`[(（](\d+)\s*[,，]\s*(\d+)[)）]`)

var (
	clickRes = []*regexp.Regexp{
		regexp.MustCompile(`点击\s*["']?([^"']*)["']?`),
		regexp.MustCompile(`(?i)click\s+(?:on\s+)?["']?([^"']*)["']?`),
		regexp.MustCompile(`(?i)tap\s+(?:on\s+)?["']?([^"']*)["']?`),
		regexp.MustCompile(`选择\s*["']?([^"']*)["']?`),
	}
	typeRes = []*regexp.Regexp{
		regexp.MustCompile(`输入\s*["']([^"']*)["']`),
		regexp.MustCompile(`(?i)type\s+["']([^"']*)["']`),
		regexp.MustCompile(`写\s*["']([^"']*)["']`),
		regexp.MustCompile(`填写\s*["']([^"']*)["']`),
		regexp.MustCompile(`(?i)enter\s+["']([^"']*)["']`),
	}
	scrollRes = []*regexp.Regexp{
		regexp.MustCompile(`向(上|下|左|右)滚动`),
		regexp.MustCompile(`滚动\s*(上|下|左|右)?`),
		regexp.MustCompile(`(?i)scroll\s*(up|down|left|right)?`),
		regexp.MustCompile(`(上|下|左|右)滑`),
	}
	pressKeyRes = []*regexp.Regexp{
		regexp.MustCompile(`按\s*(回车|空格|删除|退格|Tab|Esc|Enter|Space|Delete|Backspace)键?`),
		regexp.MustCompile(`(?i)press\s+(enter|space|delete|backspace|tab|esc|return)`),
		regexp.MustCompile(`键盘按\s*([A-Za-z0-9]+)`),
	}
	dragCoordRes = []*regexp.Regexp{
		regexp.MustCompile(`拖[拽动]\s*从?\s*[(（](\d+)\s*[,，]\s*(\d+)[)）]\s*到\s*[(（](\d+)\s*[,，]\s*(\d+)[)）]`),
		regexp.MustCompile(`(?i)drag\s+from\s+\((\d+)\s*,\s*(\d+)\)\s+to\s+\((\d+)\s*,\s*(\d+)\)`),
	}
	dragLabelRes = []*regexp.Regexp{
		regexp.MustCompile(`拖[拽动]\s*["']?([^"'到]+?)["']?\s*到\s*["']?([^"']+?)["']?$`),
		regexp.MustCompile(`(?i)drag\s+["']?(.+?)["']?\s+to\s+["']?(.+?)["']?$`),
	}
	screenshotRe = regexp.MustCompile(`(?i)截图|截屏|screenshot|capture\s+screen`)
	waitRes      = []*regexp.Regexp{
		regexp.MustCompile(`等待\s*(\d+(?:\.\d+)?)\s*秒?`),
		regexp.MustCompile(`(?i)wait\s+(?:for\s+)?(\d+(?:\.\d+)?)\s*seconds?`),
		regexp.MustCompile(`暂停\s*(\d+(?:\.\d+)?)\s*秒?`),
		regexp.MustCompile(`(?i)sleep\s+(\d+(?:\.\d+)?)`),
	}
	findTextRes = []*regexp.Regexp{
		regexp.MustCompile(`查找\s*["']([^"']+)["']`),
		regexp.MustCompile(`(?i)find\s+["']([^"']+)["']`),
		regexp.MustCompile(`搜索\s*["']([^"']+)["']`),
		regexp.MustCompile(`寻找\s*["']([^"']+)["']`),
	}
	// press-target click form, lower priority than the named-key patterns above.
	pressClickRe = regexp.MustCompile(`按\s*["']?([^"']+?)["']?(?:按钮)?$`)

	inferOpenRe   = regexp.MustCompile(`(?i)打开|启动|运行|open|launch|run`)
	inferQuotedRe = regexp.MustCompile(`["']([^"']+)["']`)

	numberRe = regexp.MustCompile(`(\d+)`)
)

var directionNames = map[string]string{
	"上": "up", "下": "down", "左": "left", "右": "right",
	"up": "up", "down": "down", "left": "left", "right": "right",
}

var keyNames = map[string]string{
	"回车": "Return", "空格": "space", "删除": "Delete", "退格": "BackSpace",
	"enter": "Return", "return": "Return", "space": "space",
	"delete": "Delete", "backspace": "BackSpace",
	"tab": "Tab", "esc": "Escape",
}

// ParseInstruction parses raw instruction text into an ordered action plan.
// Compound instructions are split on the common separators and each fragment
// parsed on its own. An empty result with no error means no detector matched;
// callers must check the plan length.
func (p *Parser) ParseInstruction(instruction string) []schemas.Action {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil
	}

	var actions []schemas.Action
	for _, fragment := range splitCompound(instruction) {
		if a, ok := p.parseFragment(fragment); ok {
			actions = append(actions, a)
		}
	}
	if len(actions) == 0 {
		p.logger.Debug("No detector matched instruction", zap.String("instruction", instruction))
	}
	return actions
}

// splitCompound cuts an instruction into fragments on "，然后" / ", then" /
// ", and then", bare semicolons and bare full-width commas. Separators inside
// parentheses do not split, so coordinate literals like (100, 200) and
// （100，200） survive intact. A bare ASCII comma is not a separator.
func splitCompound(instruction string) []string {
	runes := []rune(instruction)
	var parts []string
	var buf []rune
	depth := 0

	flush := func() {
		if s := strings.TrimSpace(string(buf)); s != "" {
			parts = append(parts, s)
		}
		buf = buf[:0]
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '(', '（':
			depth++
		case ')', '）':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 {
			switch r {
			case '；', ';':
				flush()
				continue
			case '，':
				if m := thenWordRe.FindString(string(runes[i+1:])); m != "" {
					i += len([]rune(m))
				}
				flush()
				continue
			case ',':
				if m := thenWordRe.FindString(string(runes[i+1:])); m != "" {
					i += len([]rune(m))
					flush()
					continue
				}
			}
		}
		buf = append(buf, r)
	}
	flush()
	return parts
}

func (p *Parser) parseFragment(fragment string) (schemas.Action, bool) {
	for _, re := range clickRes {
		if m := re.FindStringSubmatch(fragment); m != nil {
			return p.clickAction(strings.TrimSpace(m[1]), fragment), true
		}
	}
	for _, re := range typeRes {
		if m := re.FindStringSubmatch(fragment); m != nil {
			return action(schemas.ActionTypeText, fragment, map[string]any{"text": m[1]}), true
		}
	}
	for _, re := range scrollRes {
		if m := re.FindStringSubmatch(fragment); m != nil {
			return p.scrollAction(m[1], fragment), true
		}
	}
	for _, re := range pressKeyRes {
		if m := re.FindStringSubmatch(fragment); m != nil {
			return action(schemas.ActionPressKey, fragment, map[string]any{"key": canonicalKey(m[1])}), true
		}
	}
	for _, re := range dragCoordRes {
		if m := re.FindStringSubmatch(fragment); m != nil {
			return action(schemas.ActionDrag, fragment, map[string]any{
				"x1": atoi(m[1]), "y1": atoi(m[2]),
				"x2": atoi(m[3]), "y2": atoi(m[4]),
				"use_coordinates": true,
			}), true
		}
	}
	for _, re := range dragLabelRes {
		if m := re.FindStringSubmatch(fragment); m != nil {
			return action(schemas.ActionDrag, fragment, map[string]any{
				"source": strings.TrimSpace(m[1]),
				"target": strings.TrimSpace(m[2]),
			}), true
		}
	}
	if screenshotRe.MatchString(fragment) {
		return action(schemas.ActionScreenshot, fragment, map[string]any{}), true
	}
	for _, re := range waitRes {
		if m := re.FindStringSubmatch(fragment); m != nil {
			d, _ := strconv.ParseFloat(m[1], 64)
			return action(schemas.ActionWait, fragment, map[string]any{"duration": d}), true
		}
	}
	for _, re := range findTextRes {
		if m := re.FindStringSubmatch(fragment); m != nil {
			return action(schemas.ActionFindText, fragment, map[string]any{"text": m[1]}), true
		}
	}
	if m := pressClickRe.FindStringSubmatch(fragment); m != nil {
		return p.clickAction(strings.TrimSpace(m[1]), fragment), true
	}
	return p.inferAction(fragment)
}

func (p *Parser) clickAction(target, fragment string) schemas.Action {
	params := map[string]any{}
	if m := coordinateRe.FindStringSubmatch(fragment); m != nil {
		params["x"] = atoi(m[1])
		params["y"] = atoi(m[2])
		params["use_coordinates"] = true
		// A coordinate literal inside the target label is noise once parsed.
		target = strings.TrimSpace(coordinateRe.ReplaceAllString(target, ""))
	} else {
		params["use_coordinates"] = false
	}
	params["target"] = strings.Trim(target, `"'“”‘’ `)
	return action(schemas.ActionClick, fragment, params)
}

func (p *Parser) scrollAction(direction, fragment string) schemas.Action {
	dir, ok := directionNames[strings.ToLower(direction)]
	if !ok {
		dir = "down"
	}
	amount := defaultScrollCount
	if m := numberRe.FindStringSubmatch(fragment); m != nil {
		amount = atoi(m[1])
	}
	return action(schemas.ActionScroll, fragment, map[string]any{
		"direction": dir,
		"amount":    amount,
	})
}

// inferAction guesses a kind for text no detector matched: launch-style
// phrasing becomes a low-confidence click, a quoted literal becomes a
// low-confidence type.
func (p *Parser) inferAction(fragment string) (schemas.Action, bool) {
	if inferOpenRe.MatchString(fragment) {
		a := action(schemas.ActionClick, fragment, map[string]any{
			"target":          fragment,
			"use_coordinates": false,
		})
		a.Confidence = inferredClickConf
		a.Description = "inferred click: " + fragment
		return a, true
	}
	if m := inferQuotedRe.FindStringSubmatch(fragment); m != nil {
		a := action(schemas.ActionTypeText, fragment, map[string]any{"text": m[1]})
		a.Confidence = inferredTypeConf
		a.Description = "inferred type: " + m[1]
		return a, true
	}
	return schemas.Action{}, false
}

func canonicalKey(key string) string {
	if mapped, ok := keyNames[strings.ToLower(key)]; ok {
		return mapped
	}
	if mapped, ok := keyNames[key]; ok {
		return mapped
	}
	return key
}

func action(kind schemas.ActionKind, source string, params map[string]any) schemas.Action {
	return schemas.Action{
		Kind:        kind,
		Parameters:  params,
		Confidence:  matchedConfidence,
		SourceText:  source,
		Description: string(kind) + ": " + source,
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
